package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "free", want: "free"},
		{in: "TIER1", want: "tier1"},
		{in: "tier1_monthly", want: "tier1"},
		{in: "tier2-monthly", want: "tier2"},
		{in: "  Tier2 ", want: "tier2"},
		{in: "some-plan", want: "some_plan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestParse(t *testing.T) {
	p, ok := Parse("tier2_monthly")
	assert.True(t, ok)
	assert.Equal(t, PlanTier2, p)

	_, ok = Parse("enterprise")
	assert.False(t, ok)
}

func TestRankOrdering(t *testing.T) {
	assert.Less(t, Rank(PlanFree), Rank(PlanTier1))
	assert.Less(t, Rank(PlanTier1), Rank(PlanTier2))
	assert.True(t, IsDowngrade(PlanTier2, PlanFree))
	assert.False(t, IsDowngrade(PlanFree, PlanTier1))
	assert.True(t, IsUpgrade(PlanTier1, PlanTier2))
	assert.False(t, IsUpgrade(PlanTier1, PlanTier1))
}

func TestRegistryUnknownFallsBackToFree(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, PlanFree, r.Limits("platinum").Plan)

	_, ok := r.Lookup("platinum")
	assert.False(t, ok)
}

func TestRegistryValues(t *testing.T) {
	r := NewRegistry()

	free := r.Limits("free")
	assert.EqualValues(t, 1500, free.CommissionBps)
	assert.Equal(t, 3, free.RetainOnDowngrade)
	assert.False(t, free.Purchasable())
	assert.False(t, free.CanPin)

	tier1 := r.Limits("tier1_monthly")
	assert.EqualValues(t, 1000, tier1.CommissionBps)
	assert.Equal(t, 10, tier1.MaxPacksPerMonth)
	assert.Equal(t, 10, tier1.RetainOnDowngrade)
	assert.True(t, tier1.Purchasable())

	tier2 := r.Limits("tier2")
	assert.EqualValues(t, 500, tier2.CommissionBps)
	assert.Zero(t, tier2.RetainOnDowngrade)
	assert.True(t, tier2.AllowsPackCount(1000))
	assert.True(t, tier2.AllowsPrice(1<<40))
}

func TestRegistryIsCopy(t *testing.T) {
	r := NewRegistry()
	r.limits[PlanFree] = Limits{Plan: PlanFree, CommissionBps: 0}

	fresh := NewRegistry()
	assert.EqualValues(t, 1500, fresh.Limits("free").CommissionBps)
}

func TestAllOrderedByRank(t *testing.T) {
	all := NewRegistry().All()
	require.Len(t, all, 3)
	assert.Equal(t, PlanFree, all[0].Plan)
	assert.Equal(t, PlanTier1, all[1].Plan)
	assert.Equal(t, PlanTier2, all[2].Plan)
}

func TestLimitChecks(t *testing.T) {
	free := NewRegistry().Limits("free")
	assert.True(t, free.AllowsPackCount(2))
	assert.False(t, free.AllowsPackCount(3))
	assert.True(t, free.AllowsDiscount(20))
	assert.False(t, free.AllowsDiscount(21))
	assert.False(t, free.AllowsFileSize(201*mb))
	assert.True(t, free.AllowsPrice(1_500_000))
	assert.False(t, free.AllowsPrice(1_500_001))
}

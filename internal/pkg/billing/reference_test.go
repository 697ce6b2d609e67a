package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanReferenceRoundTrip(t *testing.T) {
	keys := map[string]string{
		"free":          "free",
		"tier1":         "tier1",
		"tier2":         "tier2",
		"tier1_monthly": "tier1",
		"tier2_monthly": "tier2",
	}
	for i := 0; i < 20; i++ {
		user := uuid.NewString()
		for key, want := range keys {
			ref, err := BuildReference(Intent{Kind: IntentPlan, ActorID: user, PlanKey: key})
			require.NoError(t, err)

			got, err := ParseReference(ref)
			require.NoError(t, err, ref)
			assert.Equal(t, IntentPlan, got.Kind)
			assert.Equal(t, user, got.ActorID)
			assert.Equal(t, want, got.PlanKey)
		}
	}
}

func TestPackReferenceRoundTrip(t *testing.T) {
	buyer, pack := uuid.NewString(), uuid.NewString()
	ref, err := BuildReference(Intent{Kind: IntentPack, ActorID: buyer, PackID: pack})
	require.NoError(t, err)
	assert.Equal(t, "pack_"+buyer+"_"+pack, ref)

	got, err := ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, Intent{Kind: IntentPack, ActorID: buyer, PackID: pack}, got)
}

func TestParseReferenceNormalizesPlanKey(t *testing.T) {
	user := uuid.NewString()
	got, err := ParseReference("plan_" + user + "_Tier2-Monthly")
	require.NoError(t, err)
	assert.Equal(t, "tier2", got.PlanKey)
}

func TestParseReferenceRejects(t *testing.T) {
	user := uuid.NewString()
	for _, ref := range []string{
		"",
		"pack",
		"order_" + user + "_x",
		"plan_notauuid_tier1",
		"plan_" + user,
		"plan_" + user + "_",
	} {
		_, err := ParseReference(ref)
		assert.ErrorIs(t, err, ErrMalformedReference, ref)
	}
}

func TestBuildReferenceRejects(t *testing.T) {
	_, err := BuildReference(Intent{Kind: IntentPlan, ActorID: "42", PlanKey: "tier1"})
	assert.ErrorIs(t, err, ErrMalformedReference)

	_, err = BuildReference(Intent{Kind: IntentPack, ActorID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrMalformedReference)
}

func TestFindUUID(t *testing.T) {
	user := uuid.NewString()
	got, ok := FindUUID("legacy-" + user + "-suffix")
	assert.True(t, ok)
	assert.Equal(t, user, got)

	_, ok = FindUUID("nothing here")
	assert.False(t, ok)
}

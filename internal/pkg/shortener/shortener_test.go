package shortener

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureSlug_InvalidLength(t *testing.T) {
	t.Parallel()

	_, err := GenerateSecureSlug(0)
	assert.Error(t, err)
}

func TestGenerateSecureSlug_LengthAndAlphabet(t *testing.T) {
	t.Parallel()

	slug, err := GenerateSecureSlug(10)
	require.NoError(t, err)
	require.Len(t, slug, 10)

	for i := 0; i < len(slug); i++ {
		assert.NotEqual(t, -1, strings.IndexByte(alphabet, slug[i]), "invalid character %q", slug[i])
	}
}

func TestPurchaseCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := PurchaseCode()
		require.NoError(t, err)
		require.Len(t, code, 12)
		assert.True(t, strings.HasPrefix(code, "ARS-"))
		for _, c := range code[4:] {
			assert.Contains(t, codeAlphabet, string(c))
		}
		_, dup := seen[code]
		assert.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

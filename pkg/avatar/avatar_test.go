package avatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURIDeterministic(t *testing.T) {
	first := URI("Ada Lovelace", VariantInitials)
	second := URI("Ada Lovelace", VariantInitials)

	assert.Equal(t, first, second)
	assert.Equal(t, "https://api.dicebear.com/9.x/initials/svg?seed=Ada+Lovelace", first)
}

func TestURIVariants(t *testing.T) {
	human := URI("Ada", VariantInitials)
	agent := URI("Ada", VariantBotttsNeutral)

	assert.NotEqual(t, human, agent)
	assert.Contains(t, agent, "bottts-neutral")
}

func TestURIEscapesSeed(t *testing.T) {
	uri := URI("a&b=c", VariantInitials)

	assert.Contains(t, uri, "seed=a%26b%3Dc")
}

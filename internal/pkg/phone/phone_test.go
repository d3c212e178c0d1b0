package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE164(t *testing.T) {
	n := NewNormalizer("")

	got, err := n.E164("(202) 456-1111")
	require.NoError(t, err)
	assert.Equal(t, "+12024561111", got)

	got, err = n.E164("+44 20 7183 8750")
	require.NoError(t, err)
	assert.Equal(t, "+442071838750", got)

	for _, bad := range []string{"", "   ", "12", "not a number"} {
		_, err := n.E164(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
}

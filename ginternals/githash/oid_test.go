package githash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOidFullRoundTrip(t *testing.T) {
	t.Parallel()

	hex := []byte("9b91da06e69613397b38e0808e0ba5ee69832510")
	full, err := NewOidFullFromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, string(hex), full.String())
}

func TestOidRoundTrip(t *testing.T) {
	t.Parallel()

	hex := []byte("9b91da06e69613397b38e0808e0ba5e0")
	oid, err := NewOidFromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, string(hex), oid.String())
}

func TestTruncateAndRebuild(t *testing.T) {
	t.Parallel()

	full, err := NewOidFullFromHex([]byte("9b91da06e69613397b38e0808e0ba5ee69832510"))
	require.NoError(t, err)

	oid, remainder := full.Truncate()
	rebuilt := Rebuild(oid, remainder)
	assert.Equal(t, full, rebuilt)
}

func TestPartialOidFromHex(t *testing.T) {
	t.Parallel()

	t.Run("rejects a prefix shorter than 4 chars", func(t *testing.T) {
		t.Parallel()
		_, err := NewPartialOid("abc")
		require.Error(t, err)
	})

	t.Run("zero-pads a short prefix on the right", func(t *testing.T) {
		t.Parallel()

		p, err := NewPartialOid("abcd")
		require.NoError(t, err)
		assert.Equal(t, byte(0xab), p.FirstByte())
	})
}

func TestPartialOidMatches(t *testing.T) {
	t.Parallel()

	full1, err := NewOidFullFromHex([]byte("abcd123400000000000000000000000000000000"[:40]))
	require.NoError(t, err)
	oid1, _ := full1.Truncate()

	full2, err := NewOidFullFromHex([]byte("abcd567800000000000000000000000000000000"[:40]))
	require.NoError(t, err)
	oid2, _ := full2.Truncate()

	p4, err := NewPartialOid("abcd")
	require.NoError(t, err)
	assert.True(t, p4.Matches(oid1))
	assert.True(t, p4.Matches(oid2))

	p5, err := NewPartialOid("abcd1")
	require.NoError(t, err)
	assert.True(t, p5.Matches(oid1))
	assert.False(t, p5.Matches(oid2))
}

func TestPartialOidMatchesExactFullKey(t *testing.T) {
	t.Parallel()

	full, err := NewOidFullFromHex([]byte("ffffffffffffffffffffffffffffffffffffffff"[:40]))
	require.NoError(t, err)
	oid, _ := full.Truncate()

	// a 32-char prefix specifies the entire 128-bit key
	p, err := NewPartialOid("ffffffffffffffffffffffffffffffff"[:32])
	require.NoError(t, err)
	assert.True(t, p.Matches(oid))

	other, _ := OidFull{0x00}.Truncate()
	assert.False(t, p.Matches(other))
}

func TestOidOrdering(t *testing.T) {
	t.Parallel()

	low, err := NewOidFromHex([]byte("00000000000000000000000000000001"[:32]))
	require.NoError(t, err)
	high, err := NewOidFromHex([]byte("00000000000000000000000000000002"[:32]))
	require.NoError(t, err)
	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
}

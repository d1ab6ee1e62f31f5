package pathbuilder

import (
	"strings"
	"testing"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderPaths(t *testing.T) {
	t.Parallel()

	b, err := New("/repo/.git/objects")
	require.NoError(t, err)

	full, err := githash.NewOidFullFromHex([]byte("ce013625030ba8dba906f756967f9e9ca394464a"[:40]))
	require.NoError(t, err)

	assert.Equal(t, "/repo/.git/objects/ce", b.LooseFolder(full.FirstByte()))
	assert.Equal(t, "/repo/.git/objects/ce/013625030ba8dba906f756967f9e9ca394464a", b.LooseObjectPath(full))
	assert.Equal(t, "/repo/.git/objects/pack", b.PacksDir())
	assert.True(t, strings.HasSuffix(b.PackIndexPath(full), ".idx"))
	assert.True(t, strings.HasSuffix(b.PackFilePath(full), ".pack"))
}

func TestBuilderRejectsOversizedBase(t *testing.T) {
	t.Parallel()

	_, err := New(strings.Repeat("a", bufSize))
	require.Error(t, err)
}

package object_test

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectIDIsContentAddressed(t *testing.T) {
	t.Parallel()

	a := object.New(object.TypeBlob, []byte("hello world"))
	b := object.New(object.TypeBlob, []byte("hello world"))
	assert.Equal(t, a.ID(), b.ID())

	c := object.New(object.TypeBlob, []byte("goodbye world"))
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestObjectTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "commit", object.TypeCommit.String())
	assert.Equal(t, "tree", object.TypeTree.String())
	assert.Equal(t, "blob", object.TypeBlob.String())
	assert.Equal(t, "tag", object.TypeTag.String())
	assert.True(t, object.TypeCommit.IsValid())
	assert.False(t, object.Type(42).IsValid())
}

func TestNewTypeFromString(t *testing.T) {
	t.Parallel()

	typ, err := object.NewTypeFromString("blob")
	require.NoError(t, err)
	assert.Equal(t, object.TypeBlob, typ)

	_, err = object.NewTypeFromString("bogus")
	require.ErrorIs(t, err, object.ErrObjectUnknown)
}

func TestObjectCompressRoundTrip(t *testing.T) {
	t.Parallel()

	o := object.New(object.TypeBlob, []byte("hello world"))
	compressed, err := o.Compress()
	require.NoError(t, err)

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "blob 11\x00hello world", string(raw))
}

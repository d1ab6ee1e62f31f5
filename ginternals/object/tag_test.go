package object_test

import (
	"testing"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTag(target githash.OidFull, typ, name, message string) []byte {
	raw := "object " + target.String() + "\n" +
		"type " + typ + "\n" +
		"tag " + name + "\n" +
		"tagger Ada Lovelace <ada@example.com> 1566115917 -0700\n" +
		"\n" +
		message
	return []byte(raw)
}

func TestParseTag(t *testing.T) {
	t.Parallel()

	target := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := buildTag(target, "commit", "v1.0.0", "release notes\n")

	tag, err := object.ParseTag(githash.OidFull{}, raw)
	require.NoError(t, err)
	assert.Equal(t, target, tag.Target)
	assert.Equal(t, object.TypeCommit, tag.Type)
	assert.Equal(t, "v1.0.0", tag.Name)
	assert.Equal(t, "Ada Lovelace", tag.Tagger.Name)
	assert.Equal(t, "release notes\n", tag.Message)
}

func TestParseTagRequiresTagger(t *testing.T) {
	t.Parallel()

	target := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := []byte("object " + target.String() + "\ntype commit\ntag v1\n\nmsg")

	_, err := object.ParseTag(githash.OidFull{}, raw)
	require.ErrorIs(t, err, object.ErrTagInvalid)
}

func TestTagToObjectRoundTrip(t *testing.T) {
	t.Parallel()

	target := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := buildTag(target, "commit", "v1.0.0", "release notes\n")
	tag, err := object.ParseTag(githash.OidFull{}, raw)
	require.NoError(t, err)

	o := tag.ToObject()
	assert.Equal(t, object.TypeTag, o.Type())

	reparsed, err := object.ParseTag(o.ID(), o.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tag.Name, reparsed.Name)
	assert.Equal(t, tag.Target, reparsed.Target)
}

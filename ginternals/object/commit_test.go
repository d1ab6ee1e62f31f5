package object_test

import (
	"strings"
	"testing"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCommit(t *testing.T, treeID githash.OidFull, parents []githash.OidFull, message string) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("tree ")
	b.WriteString(treeID.String())
	b.WriteByte('\n')
	for _, p := range parents {
		b.WriteString("parent ")
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	b.WriteString("author Ada Lovelace <ada@example.com> 1566115917 -0700\n")
	b.WriteString("committer Ada Lovelace <ada@example.com> 1566115917 -0700\n")
	b.WriteByte('\n')
	b.WriteString(message)
	return []byte(b.String())
}

func TestParseCommitFull(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	parent := mustOidFull(t, "9785af758bcc96cd7237ba65eb2c9dd1ecaa3321")
	raw := buildCommit(t, treeID, []githash.OidFull{parent}, "initial commit\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFull)
	require.NoError(t, err)
	assert.Equal(t, treeID, c.TreeID)
	assert.Equal(t, 1, c.ParentCount)
	assert.Equal(t, parent, c.ParentOne)
	assert.Equal(t, "Ada Lovelace", c.Author.Name)
	assert.Equal(t, "ada@example.com", c.Author.Email)
	assert.Equal(t, "initial commit", c.Message)
}

func TestParseCommitFullTrimsTrailingNewlines(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := buildCommit(t, treeID, nil, "trailing blanks\n\n\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFull)
	require.NoError(t, err)
	assert.Equal(t, "trailing blanks", c.Message)
}

func TestParseCommitOctopusMergeOverflows(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	p1 := mustOidFull(t, "9785af758bcc96cd7237ba65eb2c9dd1ecaa3321")
	p2 := mustOidFull(t, "4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	p3 := mustOidFull(t, "ce013625030ba8dba906f756967f9e9ca3944640")
	raw := buildCommit(t, treeID, []githash.OidFull{p1, p2, p3}, "octopus merge\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFull)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ParentCount)
	assert.Equal(t, p1, c.ParentOne)
	assert.Equal(t, p2, c.ParentTwo)
	require.Len(t, c.ParentsOverflow, 1)
	assert.Equal(t, p3, c.ParentsOverflow[0])
	assert.Equal(t, []githash.OidFull{p1, p2, p3}, c.Parents())
}

func TestParseCommitCapabilitiesSkipWork(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	parent := mustOidFull(t, "9785af758bcc96cd7237ba65eb2c9dd1ecaa3321")
	raw := buildCommit(t, treeID, []githash.OidFull{parent}, "hello\n")

	t.Run("parents and message skips signatures and keeps only first line", func(t *testing.T) {
		t.Parallel()
		c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitOnlyParentsAndMessage)
		require.NoError(t, err)
		assert.True(t, c.Author.IsZero())
		assert.Equal(t, "hello", c.Message)
		assert.Equal(t, parent, c.ParentOne)
	})

	t.Run("only message no author or committer behaves like parents and message", func(t *testing.T) {
		t.Parallel()
		c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitOnlyMessageNoAuthorOrCommitter)
		require.NoError(t, err)
		assert.True(t, c.Author.IsZero())
		assert.Equal(t, "hello", c.Message)
		assert.Equal(t, treeID, c.TreeID)
		assert.Equal(t, parent, c.ParentOne)
	})

	t.Run("parents only skips message and signatures", func(t *testing.T) {
		t.Parallel()
		c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitOnlyParents)
		require.NoError(t, err)
		assert.True(t, c.Author.IsZero())
		assert.Empty(t, c.Message)
		assert.Equal(t, parent, c.ParentOne)
	})

	t.Run("tree and parents only also has the tree id", func(t *testing.T) {
		t.Parallel()
		c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitOnlyTreeAndParents)
		require.NoError(t, err)
		assert.Equal(t, treeID, c.TreeID)
		assert.Equal(t, parent, c.ParentOne)
	})

	t.Run("full only message keeps signatures but trims message to first line", func(t *testing.T) {
		t.Parallel()
		c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFullOnlyMessage)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", c.Author.Name)
		assert.Equal(t, "hello", c.Message)
	})
}

func TestParseCommitFullMessageAndDescription(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	parent := mustOidFull(t, "9785af758bcc96cd7237ba65eb2c9dd1ecaa3321")
	raw := buildCommit(t, treeID, []githash.OidFull{parent}, "summary line\n\nfirst body line\nsecond body line\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFullMessageAndDescription)
	require.NoError(t, err)
	assert.Equal(t, "summary line", c.Message)
	assert.Equal(t, "\nfirst body line\nsecond body line", c.Description)
}

func TestParseCommitFullMessageAndDescriptionWithoutBlankLine(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := buildCommit(t, treeID, nil, "only a summary\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFullMessageAndDescription)
	require.NoError(t, err)
	assert.Equal(t, "only a summary", c.Message)
	assert.Empty(t, c.Description)
}

func TestToObjectRoundTripsMessageAndDescription(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	parent := mustOidFull(t, "9785af758bcc96cd7237ba65eb2c9dd1ecaa3321")
	raw := buildCommit(t, treeID, []githash.OidFull{parent}, "summary line\n\nfirst body line\nsecond body line\n")

	c, err := object.ParseCommit(githash.OidFull{}, raw, object.CommitFullMessageAndDescription)
	require.NoError(t, err)

	reserialized := c.ToObject().Bytes()
	full, err := object.ParseCommit(githash.OidFull{}, reserialized, object.CommitFull)
	require.NoError(t, err)
	assert.Equal(t, "summary line\n\nfirst body line\nsecond body line", full.Message)
}

func TestParseCommitRejectsMissingTree(t *testing.T) {
	t.Parallel()

	_, err := object.ParseCommit(githash.OidFull{}, []byte("parent deadbeef\n\nmsg"), object.CommitFull)
	require.ErrorIs(t, err, object.ErrCommitInvalid)
}

func TestParseCommitWithGPGSig(t *testing.T) {
	t.Parallel()

	treeID := mustOidFull(t, "f0b577644139c6e04216d82f1dd4a5a63addeeca")
	raw := "tree " + treeID.String() + "\n" +
		"author Ada Lovelace <ada@example.com> 1566115917 -0700\n" +
		"committer Ada Lovelace <ada@example.com> 1566115917 -0700\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" abcdef\n" +
		" -----END PGP SIGNATURE-----\n" +
		"\n" +
		"signed commit\n"

	c, err := object.ParseCommit(githash.OidFull{}, []byte(raw), object.CommitFull)
	require.NoError(t, err)
	assert.Contains(t, c.GPGSig, "BEGIN PGP SIGNATURE")
	assert.Equal(t, "signed commit", c.Message)
}

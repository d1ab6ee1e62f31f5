package object

import (
	"bytes"
	"strings"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/internal/readutil"
	"golang.org/x/xerrors"
)

// CommitCapability selects how much of a commit's content a caller wants
// parsed, so a caller walking a log for its parent graph alone doesn't
// pay for signature or message parsing.
type CommitCapability int8

const (
	// CommitFull parses the tree, every parent, both signatures, and the
	// full message with trailing newlines trimmed.
	CommitFull CommitCapability = iota
	// CommitFullMessageAndDescription is CommitFull with the message
	// further split at its first blank line into a summary (Message)
	// and the rest (Description).
	CommitFullMessageAndDescription
	// CommitFullOnlyMessage is CommitFull but keeps only the message's
	// first line, to skip allocating for a long commit body.
	CommitFullOnlyMessage
	// CommitOnlyTreeAndParents skips signatures and the message
	// entirely, returning as soon as the parent list ends.
	CommitOnlyTreeAndParents
	// CommitOnlyParentsAndMessage skips signatures, keeping only the
	// parents and the message's first line. The tree id is still
	// populated (parsing it is free, unlike the original's dedicated
	// tree-less struct), but callers selecting this capability should
	// not rely on it.
	CommitOnlyParentsAndMessage
	// CommitOnlyParents skips signatures and the message entirely,
	// returning as soon as the parent list ends. Equivalent in this
	// implementation to CommitOnlyTreeAndParents, since the tree id is
	// always parsed as part of reading the parent list's start.
	CommitOnlyParents
	// CommitOnlyMessageNoAuthorOrCommitter keeps the tree id, the parents
	// and the message's first line, and skips signatures. Since the tree
	// id is populated at every capability, it parses exactly like
	// CommitOnlyParentsAndMessage.
	CommitOnlyMessageNoAuthorOrCommitter
)

// Commit is a parsed commit object at the chosen CommitCapability. The
// common case of 1-2 parents is held inline in ParentOne/ParentTwo;
// octopus merges overflow into ParentsOverflow.
type Commit struct {
	ID        githash.OidFull
	TreeID    githash.OidFull
	ParentOne githash.OidFull
	ParentTwo githash.OidFull

	ParentCount     int
	ParentsOverflow []githash.OidFull

	Author    Signature
	Committer Signature
	GPGSig    string
	Message   string

	// Description holds everything after the message's first blank line,
	// populated only at CommitFullMessageAndDescription.
	Description string
}

// Parents returns every parent id, in order, regardless of how many were
// held inline vs. overflowed.
func (c *Commit) Parents() []githash.OidFull {
	out := make([]githash.OidFull, 0, c.ParentCount)
	if c.ParentCount > 0 {
		out = append(out, c.ParentOne)
	}
	if c.ParentCount > 1 {
		out = append(out, c.ParentTwo)
	}
	out = append(out, c.ParentsOverflow...)
	return out
}

func (c *Commit) addParent(id githash.OidFull) {
	switch c.ParentCount {
	case 0:
		c.ParentOne = id
	case 1:
		c.ParentTwo = id
	default:
		c.ParentsOverflow = append(c.ParentsOverflow, id)
	}
	c.ParentCount++
}

// ParseCommit parses a commit object's content at the given capability.
//
// Grammar (strict, single pass):
//
//	"tree " <40-hex> "\n"
//	("parent " <40-hex> "\n")*
//	"author " <rest-of-line> "\n"
//	"committer " <rest-of-line> "\n"
//	(<header-key> " " <rest-of-line> "\n" (" " <continuation-line> "\n")*)*
//	"\n"
//	<message>
func ParseCommit(id githash.OidFull, content []byte, cap CommitCapability) (*Commit, error) {
	c := &Commit{ID: id}
	offset := 0

	line := readutil.ReadTo(content[offset:], '\n')
	if line == nil {
		return nil, xerrors.Errorf("could not find the tree line: %w", ErrCommitInvalid)
	}
	kv := bytes.SplitN(line, []byte{' '}, 2)
	if len(kv) != 2 || string(kv[0]) != "tree" {
		return nil, xerrors.Errorf("expected a tree line first: %w", ErrCommitInvalid)
	}
	treeID, err := githash.NewOidFullFromHex(kv[1])
	if err != nil {
		return nil, xerrors.Errorf("could not parse tree id %q: %w", kv[1], ErrCommitInvalid)
	}
	c.TreeID = treeID
	offset += len(line) + 1

	for {
		line = readutil.ReadTo(content[offset:], '\n')
		if line == nil {
			return nil, xerrors.Errorf("commit ended before author line: %w", ErrCommitInvalid)
		}
		kv = bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 || string(kv[0]) != "parent" {
			break
		}
		offset += len(line) + 1
		pid, perr := githash.NewOidFullFromHex(kv[1])
		if perr != nil {
			return nil, xerrors.Errorf("could not parse parent id %q: %w", kv[1], ErrCommitInvalid)
		}
		c.addParent(pid)
	}

	if cap == CommitOnlyTreeAndParents || cap == CommitOnlyParents {
		return c, nil
	}

	if len(kv) != 2 || string(kv[0]) != "author" {
		return nil, xerrors.Errorf("expected an author line: %w", ErrCommitInvalid)
	}
	wantSignatures := cap == CommitFull || cap == CommitFullMessageAndDescription || cap == CommitFullOnlyMessage
	if wantSignatures {
		author, aerr := NewSignatureFromBytes(kv[1])
		if aerr != nil {
			return nil, xerrors.Errorf("could not parse author signature: %w", aerr)
		}
		c.Author = author
	}
	offset += len(line) + 1

	line = readutil.ReadTo(content[offset:], '\n')
	if line == nil {
		return nil, xerrors.Errorf("commit ended before committer line: %w", ErrCommitInvalid)
	}
	kv = bytes.SplitN(line, []byte{' '}, 2)
	if len(kv) != 2 || string(kv[0]) != "committer" {
		return nil, xerrors.Errorf("expected a committer line: %w", ErrCommitInvalid)
	}
	if wantSignatures {
		committer, cerr := NewSignatureFromBytes(kv[1])
		if cerr != nil {
			return nil, xerrors.Errorf("could not parse committer signature: %w", cerr)
		}
		c.Committer = committer
	}
	offset += len(line) + 1

	// Zero or more extended header blocks (mergetag, gpgsig, encoding...),
	// each possibly spanning multiple lines via a leading-space
	// continuation, until the blank line that starts the message.
	for {
		line = readutil.ReadTo(content[offset:], '\n')
		if line == nil {
			return nil, xerrors.Errorf("commit ended before the message separator: %w", ErrCommitInvalid)
		}
		if len(line) == 0 {
			offset++
			break
		}
		offset += len(line) + 1
		kv = bytes.SplitN(line, []byte{' '}, 2)
		var value string
		if len(kv) == 2 {
			value = string(kv[1])
		}
		for {
			next := readutil.ReadTo(content[offset:], '\n')
			if next == nil || len(next) == 0 || next[0] != ' ' {
				break
			}
			value += "\n" + strings.TrimPrefix(string(next), " ")
			offset += len(next) + 1
		}
		if wantSignatures && len(kv) == 2 && string(kv[0]) == "gpgsig" {
			c.GPGSig = value
		}
	}

	message := content[offset:]
	switch cap {
	case CommitFull, CommitFullMessageAndDescription:
		message = bytes.TrimRight(message, "\n")
	default:
		message = firstLine(message)
	}

	if cap == CommitFullMessageAndDescription {
		if idx := bytes.Index(message, []byte("\n\n")); idx >= 0 {
			c.Message = string(message[:idx])
			c.Description = string(message[idx+1:])
			return c, nil
		}
	}
	c.Message = string(message)
	return c, nil
}

// firstLine returns b up to (not including) its first newline, or all of
// b if it has none. Used by the summary capability variants, which parse
// a commit's message without allocating for its full body.
func firstLine(b []byte) []byte {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		return b[:idx]
	}
	return b
}

// ToObject serializes the commit back into its wire format. Requires a
// CommitFull or CommitFullMessageAndDescription parse; any other
// capability drops fields the wire format needs and won't round-trip.
func (c *Commit) ToObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("tree ")
	buf.WriteString(c.TreeID.String())
	buf.WriteByte('\n')

	for _, p := range c.Parents() {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	buf.WriteString("author ")
	buf.WriteString(c.Author.String())
	buf.WriteByte('\n')

	buf.WriteString("committer ")
	buf.WriteString(c.Committer.String())
	buf.WriteByte('\n')

	if c.GPGSig != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(c.GPGSig)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	if c.Description != "" {
		buf.WriteByte('\n')
		buf.WriteString(c.Description)
	}
	buf.WriteByte('\n')
	return NewWithID(c.ID, TypeCommit, buf.Bytes())
}

// Command gitodb-cat is a thin demonstration binary for the object
// database read path: given an objects directory and a partial or full
// id, it resolves the id and prints the parsed object, the same way
// `git cat-file -p` does. Flag parsing and output formatting are
// external-collaborator concerns, not part of the core library.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mlpln/gitodb/backend/fsbackend"
	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/mlpln/gitodb/internal/errutil"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

func main() {
	typeOnly := flag.Bool("t", false, "show the object's type instead of its content")
	sizeOnly := flag.Bool("s", false, "show a blob's size instead of its content (other types print 0)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: gitodb-cat [-t|-s] OBJECTS-DIR ID")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	if *typeOnly && *sizeOnly {
		fmt.Fprintln(os.Stderr, "gitodb-cat: -t and -s are mutually exclusive")
		os.Exit(2)
	}

	if err := run(os.Stdout, flag.Arg(0), flag.Arg(1), *typeOnly, *sizeOnly); err != nil {
		fmt.Fprintln(os.Stderr, "gitodb-cat:", err)
		os.Exit(1)
	}
}

func run(out io.Writer, objectsDir, idStr string, typeOnly, sizeOnly bool) (err error) {
	partial, err := githash.NewPartialOid(idStr)
	if err != nil {
		return xerrors.Errorf("%s is not a valid object id: %w", idStr, err)
	}

	db := fsbackend.New(afero.NewOsFs(), objectsDir)
	defer errutil.Close(db, &err)

	state, err := db.NewState()
	if err != nil {
		return xerrors.Errorf("could not open %s: %w", objectsDir, err)
	}
	defer errutil.Close(state, &err)

	oid, loc, err := db.Resolve(partial, state)
	if err != nil {
		var ambiguous *ginternals.AmbiguousError
		if errors.As(err, &ambiguous) {
			fmt.Fprintf(out, "ambiguous id %s, %d candidates:\n", ambiguous.Prefix, len(ambiguous.Matches))
			for _, m := range ambiguous.Matches {
				fmt.Fprintln(out, m.String())
			}
			return nil
		}
		if errors.Is(err, ginternals.ErrObjectNotFound) {
			return xerrors.Errorf("%s: not found", idStr)
		}
		return err
	}

	parsed, err := db.GetObject(loc, state, object.FullCapabilities)
	if err != nil {
		return xerrors.Errorf("could not read object %s: %w", oid, err)
	}

	switch {
	case typeOnly:
		fmt.Fprintln(out, parsed.Kind.String())
	case sizeOnly:
		fmt.Fprintln(out, objectSize(parsed))
	default:
		return printObject(out, parsed)
	}
	return nil
}

// objectSize returns a blob's content size. Every other type returns 0:
// the parsed commit, tree and tag values do not carry their raw size.
func objectSize(parsed object.Parsed) int {
	switch parsed.Kind {
	case object.TypeBlob:
		return parsed.Blob.Size
	default:
		return 0
	}
}

func printObject(out io.Writer, parsed object.Parsed) error {
	switch parsed.Kind {
	case object.TypeCommit:
		c := parsed.Commit
		fmt.Fprintf(out, "tree %s\n", c.TreeID.String())
		for _, id := range c.Parents() {
			fmt.Fprintf(out, "parent %s\n", id.String())
		}
		fmt.Fprintf(out, "author %s\n", c.Author.String())
		fmt.Fprintf(out, "committer %s\n", c.Committer.String())
		if c.GPGSig != "" {
			fmt.Fprintf(out, "gpgsig %s\n", c.GPGSig)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, c.Message)
	case object.TypeTag:
		t := parsed.Tag
		fmt.Fprintf(out, "object %s\n", t.Target.String())
		fmt.Fprintf(out, "type %s\n", t.Type.String())
		fmt.Fprintf(out, "tag %s\n", t.Name)
		fmt.Fprintf(out, "tagger %s\n", t.Tagger.String())
		if t.GPGSig != "" {
			fmt.Fprintf(out, "gpgsig %s\n", t.GPGSig)
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, t.Message)
	case object.TypeTree:
		for _, e := range parsed.Tree.Entries {
			fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), e.Path)
		}
	case object.TypeBlob:
		fmt.Fprint(out, string(parsed.Blob.Raw))
	default:
		return xerrors.Errorf("pretty-print not supported for type %s", parsed.Kind.String())
	}
	return nil
}

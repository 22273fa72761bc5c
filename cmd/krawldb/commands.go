package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maruel/krawldb/internal/config"
	"github.com/maruel/krawldb/internal/jsondb"
	"github.com/maruel/krawldb/internal/models"
)

type dict = jsondb.Database[models.Word]

// op is a command that works on the configured database. Ops are shared by
// the one-shot commands and the shell.
type op struct {
	use   string
	short string
	args  cobra.PositionalArgs
	run   func(ctx context.Context, w io.Writer, db *dict, args []string) error
}

var ops = []op{
	{"list", "List every word", cobra.NoArgs, runList},
	{"get <index>", "Print the word at index", cobra.ExactArgs(1), runGet},
	{"add <word> <meaning>...", "Append word/meaning pairs", pairArgs, runAdd},
	{"update <index> <word> <meaning>", "Replace the word at index", cobra.ExactArgs(3), runUpdate},
	{"delete <index>", "Delete the word at index", cobra.ExactArgs(1), runDelete},
	{"clear", "Delete every word and the database file", cobra.NoArgs, runClear},
	{"find <substring>", "List words containing substring with their index", cobra.ExactArgs(1), runFind},
}

func (o *op) name() string {
	name, _, _ := strings.Cut(o.use, " ")
	return name
}

func lookupOp(name string) *op {
	for i := range ops {
		if ops[i].name() == name {
			return &ops[i]
		}
	}
	return nil
}

func newOpCmd(a *app, name string) *cobra.Command {
	o := lookupOp(name)
	return &cobra.Command{
		Use:   o.use,
		Short: o.short,
		Args:  o.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			return o.run(cmd.Context(), cmd.OutOrStdout(), db, args)
		},
	}
}

func newListCmd(a *app) *cobra.Command   { return newOpCmd(a, "list") }
func newGetCmd(a *app) *cobra.Command    { return newOpCmd(a, "get") }
func newAddCmd(a *app) *cobra.Command    { return newOpCmd(a, "add") }
func newUpdateCmd(a *app) *cobra.Command { return newOpCmd(a, "update") }
func newDeleteCmd(a *app) *cobra.Command { return newOpCmd(a, "delete") }
func newClearCmd(a *app) *cobra.Command  { return newOpCmd(a, "clear") }
func newFindCmd(a *app) *cobra.Command   { return newOpCmd(a, "find") }

func newNamesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List the databases in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.registry.Names()
			if err != nil {
				return err
			}
			for _, n := range names {
				if n == config.FileName {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func pairArgs(_ *cobra.Command, args []string) error {
	if len(args) == 0 || len(args)%2 != 0 {
		return fmt.Errorf("expected word/meaning pairs, got %d arguments", len(args))
	}
	return nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

func printWord(w io.Writer, i int, word models.Word) {
	fmt.Fprintf(w, "%d\t%s\n", i, word)
}

func runList(_ context.Context, w io.Writer, db *dict, _ []string) error {
	for i, word := range db.Snapshot() {
		printWord(w, i, word)
	}
	return nil
}

func runGet(ctx context.Context, w io.Writer, db *dict, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	type result struct {
		word models.Word
		err  error
	}
	ch := make(chan result, 1)
	db.Get(func(word models.Word, err error) { ch <- result{word, err} }, i)
	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		printWord(w, i, r.word)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runAdd(ctx context.Context, w io.Writer, db *dict, args []string) error {
	words, err := models.ParseWords(args)
	if err != nil {
		return err
	}
	if err := db.Add(nil, words...).Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Added %d word(s), %d total\n", len(words), db.Len())
	return nil
}

func runUpdate(ctx context.Context, w io.Writer, db *dict, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	word := models.Word{Word: args[1], Meaning: args[2]}
	if err := db.Update(nil, i, word).Wait(ctx); err != nil {
		return err
	}
	printWord(w, i, word)
	return nil
}

func runDelete(ctx context.Context, w io.Writer, db *dict, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	if err := db.Delete(nil, i).Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %d, %d left\n", i, db.Len())
	return nil
}

func runClear(ctx context.Context, w io.Writer, db *dict, _ []string) error {
	if err := db.Clear(nil).Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %s\n", db.Name())
	return nil
}

func runFind(_ context.Context, w io.Writer, db *dict, args []string) error {
	found, err := db.FilterIndexed(func(word models.Word) (bool, error) {
		return word.Matches(args[0]), nil
	})
	if err != nil {
		return err
	}
	indexes := make([]int, 0, len(found))
	for i := range found {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)
	for _, i := range indexes {
		printWord(w, i, found[i])
	}
	return nil
}

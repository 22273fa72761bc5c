package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/maruel/krawldb/internal/models"
)

const historyFile = ".krawldb_history"

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Edit the database interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			unsubscribe, err := db.Subscribe(func(rows []models.Word) {
				slog.Info("Database changed", "db", db.Name(), "words", len(rows))
			})
			if err != nil {
				return err
			}
			defer unsubscribe()

			line := liner.NewLiner()
			defer func() { _ = line.Close() }()
			line.SetCtrlCAborts(true)
			line.SetCompleter(completeOp)
			history := filepath.Join(a.cfg.DataDir, historyFile)
			if f, err := os.Open(history); err == nil { //nolint:gosec // G304: inside the data directory
				_, _ = line.ReadHistory(f)
				_ = f.Close()
			}
			defer func() {
				if f, err := os.Create(history); err == nil { //nolint:gosec // G304: inside the data directory
					_, _ = line.WriteHistory(f)
					_ = f.Close()
				}
			}()

			w := cmd.OutOrStdout()
			for {
				l, err := line.Prompt(db.Name() + "> ")
				if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				l = strings.TrimSpace(l)
				if l == "" {
					continue
				}
				line.AppendHistory(l)
				quit, err := runLine(cmd.Context(), w, db, l)
				if err != nil {
					fmt.Fprintf(w, "error: %v\n", err)
				}
				if quit {
					return nil
				}
			}
		},
	}
}

// runLine executes one shell line. It returns true when the shell should exit.
func runLine(ctx context.Context, w io.Writer, db *dict, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		for _, o := range ops {
			fmt.Fprintf(w, "  %-34s %s\n", o.use, o.short)
		}
		fmt.Fprintf(w, "  %-34s %s\n", "quit", "Leave the shell")
		return false, nil
	}
	o := lookupOp(fields[0])
	if o == nil {
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}
	args := fields[1:]
	if err := o.args(&cobra.Command{Use: o.use}, args); err != nil {
		return false, err
	}
	return false, o.run(ctx, w, db, args)
}

func completeOp(line string) []string {
	var out []string
	for _, o := range slices.Concat(ops, []op{{use: "help"}, {use: "quit"}}) {
		if strings.HasPrefix(o.name(), line) {
			out = append(out, o.name())
		}
	}
	return out
}

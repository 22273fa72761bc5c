package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/maruel/krawldb/internal/jsondb"
	"github.com/maruel/krawldb/internal/models"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the database every time its file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.registry.Location().Path(a.cfg.Database)
			if err != nil {
				return err
			}
			codec, err := jsondb.CodecByName[models.Word](a.cfg.Codec)
			if err != nil {
				return err
			}
			store := jsondb.NewStore(path, codec)
			limit := rate.Inf
			if a.cfg.WatchRatePerSec > 0 {
				limit = rate.Limit(a.cfg.WatchRatePerSec)
			}
			w := cmd.OutOrStdout()
			rows, err := store.Read()
			if err != nil {
				return err
			}
			printList(w, rows)
			slog.Info("Watching database", "path", path)
			return jsondb.Watch(cmd.Context(), store, rate.NewLimiter(limit, 1), func(rows []models.Word, err error) {
				if err != nil {
					slog.Warn("Failed to reload database", "path", path, "err", err)
					return
				}
				printList(w, rows)
			})
		},
	}
}

func printList(w io.Writer, rows []models.Word) {
	fmt.Fprintf(w, "--- %d word(s)\n", len(rows))
	for i, word := range rows {
		printWord(w, i, word)
	}
}

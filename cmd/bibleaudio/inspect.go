package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dailyword/bibleaudio/internal/catalog"
	"github.com/dailyword/bibleaudio/internal/config"
	"github.com/dailyword/bibleaudio/internal/database"
	"github.com/dailyword/bibleaudio/internal/ledger"
)

// showRun prints every recorded transition of a run followed by the final
// state counts.
func showRun(ctx context.Context, cfg config.LedgerConfig, runID string, w io.Writer, logger *slog.Logger) error {
	if cfg.RetentionMode == "off" {
		return fmt.Errorf("run ledger is disabled (ledger.retention_mode=off)")
	}
	store, err := ledger.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()

	events, err := store.ListRunEvents(ctx, runID, 0)
	if err != nil {
		return fmt.Errorf("list run events: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("run %s has no recorded events", runID)
	}
	for _, e := range events {
		line := fmt.Sprintf("%s b%03d/c%03d %-10s", e.CreatedAt.Format(time.RFC3339), e.BookID, e.Chapter, e.State)
		if e.Message != "" {
			line += " " + e.Message
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	states, err := store.LastState(ctx, runID)
	if err != nil {
		return fmt.Errorf("final chapter states: %w", err)
	}
	counts := map[string]int{}
	for _, state := range states {
		counts[string(state)]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
	}
	fmt.Fprintf(w, "chapters=%d %s\n", len(states), strings.Join(parts, " "))
	return nil
}

// showChapterMetadata prints the stored metadata of one published chapter as JSON.
func showChapterMetadata(ctx context.Context, cfg config.DatabaseConfig, bookID, chapter int, w io.Writer) error {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := catalog.NewStore(db, cfg.AudioTable)
	if err != nil {
		return err
	}
	artifact, err := store.Get(ctx, bookID, chapter)
	if err != nil {
		return fmt.Errorf("b%03d/c%03d: %w", bookID, chapter, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(artifact)
}

package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galotfa/internal/cli/config"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore"
)

// followDebounce coalesces the bursts of writes of one committed push.
const followDebounce = 200 * time.Millisecond

// followDataset watches the directory of path and prints the records of name
// past the first seen ones each time the file (or its journal) changes. It
// returns when the command context is cancelled.
func followDataset(cmd *cobra.Command, path, name, format string, seen int) error {
	ctx := cmd.Context()
	logger := config.GetLogger(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	base := filepath.Base(path)

	// a nil channel blocks until a change arms the debounce timer
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// sqlite writes go to name-wal before they reach name
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			debounce = time.After(followDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.Any("error", err))

		case <-debounce:
			debounce = nil
			n, err := printAppended(cmd, path, name, format, seen)
			if err != nil {
				logger.Warn("failed to read appended records", slog.String("dataset", name), slog.Any("error", err))
				continue
			}
			seen = n
		}
	}
}

// printAppended prints the records of name from index seen on and returns
// the new record count.
func printAppended(cmd *cobra.Command, path, name, format string, seen int) (int, error) {
	db, err := openOutput(path)
	if err != nil {
		return seen, err
	}
	defer func() { _ = db.Close() }()

	cat, err := sqlstore.ReadCatalog(cmd.Context(), db)
	if err != nil {
		return seen, err
	}
	info, ok := cat.Datasets[name]
	if !ok {
		return seen, fmt.Errorf("no dataset %q in this file", name)
	}
	records, err := sqlstore.ReadRecords(cmd.Context(), db, info)
	if err != nil {
		return seen, err
	}
	if len(records) <= seen {
		return len(records), nil
	}
	return len(records), printRecords(cmd, name, records, seen, format)
}

package backend_broker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"memgate/access"
)

// awaitMarker waits until the broker writes the completion marker, then
// returns its content (the staged command's exit status). A blind
// fixed-delay read would race the broker on loaded systems, so completion is
// an explicit marker observed through fsnotify with a poll ticker as the
// fallback; ctx bounds the whole wait.
func awaitMarker(ctx context.Context, marker string, pollInterval time.Duration) (string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(marker)); err != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if content, ok := readMarker(marker); ok {
			return content, nil
		}

		if watcher != nil {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: broker did not complete", access.ErrTimeout)
			case ev := <-watcher.Events:
				if ev.Name != marker {
					continue
				}
			case <-watcher.Errors:
				// Fall through to the ticker on watch trouble.
				watcher = nil
			case <-ticker.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: broker did not complete", access.ErrTimeout)
		case <-ticker.C:
		}
	}
}

// readMarker reports the marker's content once it is non-empty. The broker
// creates the file and then writes the status; an empty file means the write
// is still in flight.
func readMarker(marker string) (string, bool) {
	raw, err := os.ReadFile(marker)
	if err != nil {
		return "", false
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", false
	}
	return content, true
}

package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// DefaultWatchDebounce batches a burst of record writes into one
// notification.
const DefaultWatchDebounce = 2 * time.Second

// Watch reports which entity types had record files created, rewritten, or
// removed under the data root. Changes are batched: the first change opens a
// debounce window and the batch is delivered when it elapses, so a fetch run
// landing hundreds of records produces a few notifications rather than one
// per file.
//
// Index files and in-progress temporary files never trigger a notification,
// which keeps an index update from waking the watcher that requested it. The
// returned channel closes when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) (<-chan []domain.EntityType, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: creating watcher: %v", domain.ErrStorage, err)
	}
	for _, entityType := range domain.AllEntityTypes() {
		dir := filepath.Join(s.root, entityType.String())
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("%w: creating %s directory: %v", domain.ErrStorage, entityType, err)
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("%w: watching %s: %v", domain.ErrStorage, entityType, err)
		}
	}

	out := make(chan []domain.EntityType)
	go s.watchLoop(ctx, watcher, out, debounce)
	return out, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- []domain.EntityType, debounce time.Duration) {
	defer close(out)
	defer watcher.Close()

	pending := make(map[domain.EntityType]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			entityType, relevant := classifyEvent(event)
			if !relevant {
				continue
			}
			pending[entityType] = struct{}{}
			if flush == nil {
				flush = time.After(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watch: %v", err)
		case <-flush:
			batch := make([]domain.EntityType, 0, len(pending))
			for entityType := range pending {
				batch = append(batch, entityType)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i] < batch[j] })
			pending = make(map[domain.EntityType]struct{})
			flush = nil

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// classifyEvent maps a filesystem event to the entity type it affects.
// Directory events, index rewrites, and temporary files are not record
// changes.
func classifyEvent(event fsnotify.Event) (domain.EntityType, bool) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	name := filepath.Base(event.Name)
	if name == indexFileName || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, recordSuffix) {
		return "", false
	}
	entityType := domain.EntityType(filepath.Base(filepath.Dir(event.Name)))
	if !entityType.IsValid() {
		return "", false
	}
	return entityType, true
}

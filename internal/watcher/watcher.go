// Package watcher observes the specs directory and republishes document
// changes as events, so edits made outside specsync still flow through the
// same handler chain.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/specdoc"
	"github.com/sddkit/specsync/internal/storage"
)

// DefaultDebounce is used when no debounce interval is configured. Editors
// produce bursts of writes per save; one event per burst is enough.
const DefaultDebounce = 2 * time.Second

// Watcher publishes spec-updated events for document changes on disk.
type Watcher struct {
	store    storage.Store
	bus      *eventbus.Bus
	specsDir string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher over specsDir. A non-positive debounce uses
// DefaultDebounce.
func New(store storage.Store, bus *eventbus.Bus, specsDir string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		bus:      bus,
		specsDir: specsDir,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.specsDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.specsDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".md") {
				continue
			}
			w.schedule(strings.TrimSuffix(name, ".md"))
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: %v", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one spec.
func (w *Watcher) schedule(specID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[specID]; ok {
		timer.Stop()
	}
	w.pending[specID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, specID)
		w.mu.Unlock()
		w.fire(specID)
	})
}

// cancelPending stops all armed timers.
func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, timer := range w.pending {
		timer.Stop()
		delete(w.pending, id)
	}
}

// fire checks whether the document really changed and publishes the event.
// Files that do not correspond to a known spec are ignored.
func (w *Watcher) fire(specID string) {
	ctx := context.Background()

	spec, err := w.store.GetSpec(ctx, specID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("watcher: load spec %s: %v", specID, err)
		}
		return
	}

	doc, err := specdoc.Load(w.specsDir, specID)
	if err != nil {
		log.Printf("watcher: read document for %s: %v", specID, err)
		return
	}
	hash := doc.Hash()
	if hash == spec.ContentHash {
		return // touch without content change
	}

	if err := w.store.UpdateSpecContentHash(ctx, specID, hash); err != nil {
		log.Printf("watcher: update content hash for %s: %v", specID, err)
		return
	}
	if _, err := w.bus.Publish(ctx, eventbus.NewSpecUpdated(specID)); err != nil {
		log.Printf("watcher: publish for %s: %v", specID, err)
	}
}

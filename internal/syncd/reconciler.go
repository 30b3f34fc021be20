// Package syncd merges remote writes into the live object graph.
//
// Other devices commit to the same logical store through the cloud backend;
// every committed batch rewrites the store's change marker. The reconciler
// watches that marker with fsnotify and, for each batch not written by this
// device, reloads the durable graph and merges it into memory with
// in-memory-wins conflict semantics, notifying observers once per batch.
//
// This is strictly a read path from storage into memory: the reconciler
// never triggers a durable write.
package syncd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/facetapp/facet/internal/store"
	"github.com/facetapp/facet/internal/store/sqlite"
)

// Reconciler watches the backing store's change marker and keeps the
// in-memory graph in sync with remote writes.
type Reconciler struct {
	store  *store.Store
	logger *log.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Last merged marker stamp. One marker write can surface as several
	// fsnotify events; re-reading the same stamp must not re-merge.
	lastDevice string
	lastSeq    uint64
	merged     bool
}

// New creates a reconciler for s. The backing store must be on disk: an
// in-memory store has no change channel to watch.
func New(s *store.Store, logger *log.Logger) (*Reconciler, error) {
	if s.DB().MarkerPath() == "" {
		return nil, fmt.Errorf("in-memory store has no change marker to watch")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Reconciler{
		store:   s,
		logger:  logger,
		watcher: watcher,
	}, nil
}

// Run watches for remote change batches until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	// fsnotify watches directories more reliably than single files: the
	// marker is rewritten whole, which some platforms report as
	// remove+create on the file itself.
	markerPath := r.store.DB().MarkerPath()
	dir := filepath.Dir(markerPath)
	if err := r.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	r.logger.Printf("Watching for remote changes: %s", markerPath)

	r.wg.Add(1)
	go r.processEvents(ctx, markerPath)

	<-ctx.Done()
	return r.Stop()
}

// Stop closes the watcher and waits for the event loop to exit.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := r.watcher.Close(); err != nil {
		r.logger.Printf("Error closing watcher: %v", err)
	}
	r.wg.Wait()

	r.logger.Println("Reconciler stopped")
	return nil
}

// processEvents handles marker events in arrival order. Distinct remote
// batches are never coalesced: each one reloads and notifies on its own.
func (r *Reconciler) processEvents(ctx context.Context, markerPath string) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Name != markerPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			r.OnRemoteChange()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Printf("Watcher error: %v", err)
		}
	}
}

// OnRemoteChange reloads the durable graph and merges it into memory,
// unless the latest marker was written by this device or its stamp was
// already merged. Read failures are logged and skipped; the next batch
// will retry. Called serially from the event loop.
func (r *Reconciler) OnRemoteChange() {
	db := r.store.DB()

	deviceID, seq, err := sqlite.ReadMarker(db.MarkerPath())
	if err != nil {
		r.logger.Printf("Skipping unreadable change marker: %v", err)
		return
	}
	if deviceID == db.DeviceID() {
		// Our own write echoing back.
		return
	}
	if r.merged && deviceID == r.lastDevice && seq == r.lastSeq {
		// Duplicate filesystem event for a batch already merged.
		return
	}

	snap, err := db.LoadAll(context.Background())
	if err != nil {
		r.logger.Printf("Failed to load remote changes: %v", err)
		return
	}

	r.store.ApplyRemote(snap)
	r.lastDevice, r.lastSeq, r.merged = deviceID, seq, true
	r.logger.Printf("Merged remote batch from %s (%d issues, %d tags)",
		deviceID, len(snap.Issues), len(snap.Tags))
}

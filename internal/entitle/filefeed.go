package entitle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// FileFeed is a Feed backed by a JSON receipt file. It stands in for a
// platform storefront on the command line: Current replays the receipts on
// disk, Updates watches the file for new ones, and Purchase appends an
// already-verified receipt. Sandbox testing uses the same shape.
type FileFeed struct {
	path     string
	products []Product

	mu sync.Mutex
}

type receipt struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Revoked   bool   `json:"revoked,omitempty"`
}

// NewFileFeed opens a receipt-file feed at path with the given catalog.
func NewFileFeed(path string, products []Product) *FileFeed {
	return &FileFeed{path: path, products: products}
}

func (f *FileFeed) load() ([]receipt, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading receipts: %w", err)
	}
	var rs []receipt
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parsing receipts: %w", err)
	}
	return rs, nil
}

func (f *FileFeed) save(rs []receipt) error {
	raw, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding receipts: %w", err)
	}
	raw = append(raw, '\n')
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("writing receipts: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing receipts: %w", err)
	}
	return nil
}

// Current returns every receipt on disk as a transaction.
func (f *FileFeed) Current(ctx context.Context) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rs, err := f.load()
	if err != nil {
		return nil, err
	}
	txns := make([]Transaction, 0, len(rs))
	for _, r := range rs {
		txns = append(txns, Transaction{ID: r.ID, ProductID: r.ProductID, Revoked: r.Revoked})
	}
	return txns, nil
}

// Updates watches the receipt file and emits every receipt whenever it
// changes. The Manager's finalized-id set makes re-delivery harmless.
func (f *FileFeed) Updates(ctx context.Context) (<-chan Transaction, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating receipt watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching receipt dir: %w", err)
	}

	out := make(chan Transaction)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != f.path || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				txns, err := f.Current(ctx)
				if err != nil {
					continue
				}
				for _, txn := range txns {
					select {
					case out <- txn:
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// Products filters the catalog by id.
func (f *FileFeed) Products(ctx context.Context, ids []string) ([]Product, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Product
	for _, p := range f.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// Purchase appends a verified receipt for productID and returns its
// transaction.
func (f *FileFeed) Purchase(ctx context.Context, productID string) (*Transaction, error) {
	known := false
	for _, p := range f.products {
		if p.ID == productID {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown product %q", productID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rs, err := f.load()
	if err != nil {
		return nil, err
	}
	r := receipt{ID: uuid.NewString(), ProductID: productID}
	rs = append(rs, r)
	if err := f.save(rs); err != nil {
		return nil, err
	}
	return &Transaction{ID: r.ID, ProductID: r.ProductID}, nil
}

// Revoke marks every receipt for productID revoked. Used to exercise the
// revocation path from the command line.
func (f *FileFeed) Revoke(productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rs, err := f.load()
	if err != nil {
		return err
	}
	changed := false
	for i := range rs {
		if rs[i].ProductID == productID && !rs[i].Revoked {
			rs[i].Revoked = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.save(rs)
}

// Package entitle tracks the full-version purchase state. A Manager sits
// between a transaction Feed (the platform store, or a receipt file in the
// CLI) and the persisted unlock flag: it replays current entitlements at
// startup, follows the live stream, and flips the flag when the premium
// product is purchased or revoked.
package entitle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
)

// ErrVerificationFailed reports a purchase whose transaction could not be
// verified. It is recoverable: the purchase may land later through the
// update stream, so callers should surface it and carry on.
var ErrVerificationFailed = errors.New("transaction verification failed")

// Transaction is one purchase event from a Feed.
type Transaction struct {
	// ID uniquely identifies the transaction across replays.
	ID string
	// ProductID names the product purchased.
	ProductID string
	// Revoked is set when the purchase was refunded or the family
	// share it came through was withdrawn.
	Revoked bool

	// Finish acknowledges the transaction with the feed. May be nil.
	Finish func()
}

// Product describes a purchasable product.
type Product struct {
	ID          string
	DisplayName string
	Price       string
}

// Feed is the source of purchase transactions.
type Feed interface {
	// Current returns the entitlements valid right now, for replay at
	// startup.
	Current(ctx context.Context) ([]Transaction, error)
	// Updates streams transactions as they happen until ctx is done.
	Updates(ctx context.Context) (<-chan Transaction, error)
	// Products resolves product ids to purchasable products.
	Products(ctx context.Context, ids []string) ([]Product, error)
	// Purchase runs the purchase round-trip for one product. A non-nil
	// transaction means the purchase verified; ErrVerificationFailed
	// means it went through but could not be verified yet.
	Purchase(ctx context.Context, productID string) (*Transaction, error)
}

// Manager applies feed transactions for one premium product to the
// persisted unlock flag.
type Manager struct {
	feed     Feed
	settings *Settings
	product  string
	logger   *log.Logger

	mu sync.Mutex
	// finalized maps transaction id to the revocation state last applied.
	finalized map[string]bool
}

// NewManager wires a feed to a settings store. product is the premium
// product id whose purchase unlocks the full version.
func NewManager(feed Feed, settings *Settings, product string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[entitle] ", log.LstdFlags)
	}
	return &Manager{
		feed:      feed,
		settings:  settings,
		product:   product,
		logger:    logger,
		finalized: make(map[string]bool),
	}
}

// Unlocked reports whether the full version is unlocked.
func (m *Manager) Unlocked() bool {
	return m.settings.Unlocked()
}

// Finalize applies one transaction: purchases of the premium product set
// the unlock flag, revocations clear it, other products are acknowledged
// and ignored. Re-deliveries of a transaction are no-ops unless the
// revocation state changed, which is how refunds arrive.
func (m *Manager) Finalize(txn Transaction) error {
	m.mu.Lock()
	if revoked, seen := m.finalized[txn.ID]; seen && revoked == txn.Revoked {
		m.mu.Unlock()
		return nil
	}
	m.finalized[txn.ID] = txn.Revoked
	m.mu.Unlock()

	if txn.ProductID == m.product {
		unlocked := !txn.Revoked
		if err := m.settings.SetUnlocked(unlocked); err != nil {
			m.mu.Lock()
			delete(m.finalized, txn.ID)
			m.mu.Unlock()
			return fmt.Errorf("persisting unlock flag: %w", err)
		}
		if txn.Revoked {
			m.logger.Printf("premium entitlement revoked (txn %s)", txn.ID)
		} else {
			m.logger.Printf("premium unlocked (txn %s)", txn.ID)
		}
	}

	if txn.Finish != nil {
		txn.Finish()
	}
	return nil
}

// Replay applies the feed's current entitlements once, without following
// the update stream. One-shot callers use this to pick up purchases and
// revocations made while they were not running.
func (m *Manager) Replay(ctx context.Context) error {
	current, err := m.feed.Current(ctx)
	if err != nil {
		return fmt.Errorf("replaying entitlements: %w", err)
	}
	for _, txn := range current {
		if err := m.Finalize(txn); err != nil {
			m.logger.Printf("finalize %s: %v", txn.ID, err)
		}
	}
	return nil
}

// Monitor replays current entitlements, then follows the update stream
// until ctx is cancelled. Individual transaction failures are logged and
// skipped so one bad transaction never stalls the stream.
func (m *Manager) Monitor(ctx context.Context) error {
	if err := m.Replay(ctx); err != nil {
		return err
	}

	updates, err := m.feed.Updates(ctx)
	if err != nil {
		return fmt.Errorf("opening update stream: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case txn, ok := <-updates:
			if !ok {
				return nil
			}
			if err := m.Finalize(txn); err != nil {
				m.logger.Printf("finalize %s: %v", txn.ID, err)
			}
		}
	}
}

// Purchase buys the premium product. Verification failures come back as
// ErrVerificationFailed; the caller can retry or wait for the update
// stream to deliver the transaction.
func (m *Manager) Purchase(ctx context.Context) error {
	txn, err := m.feed.Purchase(ctx, m.product)
	if err != nil {
		return err
	}
	if txn == nil {
		// User cancelled or the purchase is pending approval.
		return nil
	}
	return m.Finalize(*txn)
}

// Product resolves the premium product from the feed's catalog.
func (m *Manager) Product(ctx context.Context) (*Product, error) {
	products, err := m.feed.Products(ctx, []string{m.product})
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("unknown product %q", m.product)
	}
	return &products[0], nil
}

package entitle

import (
	"context"
	"errors"
	"log"
	"testing"
)

const testProduct = "app.facet.premium"

// fakeFeed is an in-memory Feed with scripted transactions
type fakeFeed struct {
	current  []Transaction
	updates  chan Transaction
	purchase func() (*Transaction, error)
}

func (f *fakeFeed) Current(ctx context.Context) ([]Transaction, error) {
	return f.current, nil
}

func (f *fakeFeed) Updates(ctx context.Context) (<-chan Transaction, error) {
	if f.updates == nil {
		f.updates = make(chan Transaction)
	}
	return f.updates, nil
}

func (f *fakeFeed) Products(ctx context.Context, ids []string) ([]Product, error) {
	return []Product{{ID: testProduct, DisplayName: "Premium", Price: "$4.99"}}, nil
}

func (f *fakeFeed) Purchase(ctx context.Context, productID string) (*Transaction, error) {
	if f.purchase != nil {
		return f.purchase()
	}
	return &Transaction{ID: "txn-purchase", ProductID: productID}, nil
}

func testManager(t *testing.T, feed Feed) *Manager {
	t.Helper()
	settings, err := OpenSettings(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSettings() failed: %v", err)
	}
	return NewManager(feed, settings, testProduct, log.New(discard{}, "", 0))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// TestFinalize_PremiumPurchaseUnlocks tests the happy path
func TestFinalize_PremiumPurchaseUnlocks(t *testing.T) {
	m := testManager(t, &fakeFeed{})

	if m.Unlocked() {
		t.Fatal("fresh manager should be locked")
	}
	if err := m.Finalize(Transaction{ID: "t1", ProductID: testProduct}); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if !m.Unlocked() {
		t.Error("premium purchase did not unlock")
	}
}

// TestFinalize_OtherProductIgnored tests that unrelated products leave the
// flag alone
func TestFinalize_OtherProductIgnored(t *testing.T) {
	m := testManager(t, &fakeFeed{})

	finished := false
	txn := Transaction{ID: "t1", ProductID: "app.facet.tipjar", Finish: func() { finished = true }}
	if err := m.Finalize(txn); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if m.Unlocked() {
		t.Error("unrelated product changed the unlock flag")
	}
	if !finished {
		t.Error("unrelated transaction should still be acknowledged")
	}
}

// TestFinalize_Idempotent tests that re-delivery acknowledges at most once
func TestFinalize_Idempotent(t *testing.T) {
	m := testManager(t, &fakeFeed{})

	finishes := 0
	txn := Transaction{ID: "t1", ProductID: testProduct, Finish: func() { finishes++ }}
	for i := 0; i < 3; i++ {
		if err := m.Finalize(txn); err != nil {
			t.Fatalf("Finalize() #%d failed: %v", i+1, err)
		}
	}
	if finishes != 1 {
		t.Errorf("transaction finished %d times, want 1", finishes)
	}
}

// TestFinalize_RevocationClearsFlag tests that a refund re-delivery locks
// the store again
func TestFinalize_RevocationClearsFlag(t *testing.T) {
	m := testManager(t, &fakeFeed{})

	if err := m.Finalize(Transaction{ID: "t1", ProductID: testProduct}); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if !m.Unlocked() {
		t.Fatal("purchase did not unlock")
	}

	if err := m.Finalize(Transaction{ID: "t1", ProductID: testProduct, Revoked: true}); err != nil {
		t.Fatalf("Finalize(revoked) failed: %v", err)
	}
	if m.Unlocked() {
		t.Error("revocation did not clear the unlock flag")
	}
}

// TestReplay_AppliesCurrentEntitlements tests startup replay
func TestReplay_AppliesCurrentEntitlements(t *testing.T) {
	feed := &fakeFeed{current: []Transaction{
		{ID: "t1", ProductID: "app.facet.tipjar"},
		{ID: "t2", ProductID: testProduct},
	}}
	m := testManager(t, feed)

	if err := m.Replay(context.Background()); err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if !m.Unlocked() {
		t.Error("replay did not apply the premium entitlement")
	}
}

// TestMonitor_FollowsStream tests replay-then-stream until cancellation
func TestMonitor_FollowsStream(t *testing.T) {
	feed := &fakeFeed{updates: make(chan Transaction)}
	m := testManager(t, feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()

	feed.updates <- Transaction{ID: "t1", ProductID: testProduct}

	// The send above is unbuffered, so the manager has already received
	// it; Finalize runs before the next select.
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor() = %v, want context.Canceled", err)
	}
	if !m.Unlocked() {
		t.Error("streamed purchase did not unlock")
	}
}

// TestPurchase_VerificationFailureIsRecoverable tests error propagation
func TestPurchase_VerificationFailureIsRecoverable(t *testing.T) {
	feed := &fakeFeed{purchase: func() (*Transaction, error) {
		return nil, ErrVerificationFailed
	}}
	m := testManager(t, feed)

	err := m.Purchase(context.Background())
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("Purchase() = %v, want ErrVerificationFailed", err)
	}
	if m.Unlocked() {
		t.Error("failed verification must not unlock")
	}
}

// TestPurchase_UserCancelled tests that a nil transaction is not an error
func TestPurchase_UserCancelled(t *testing.T) {
	feed := &fakeFeed{purchase: func() (*Transaction, error) { return nil, nil }}
	m := testManager(t, feed)

	if err := m.Purchase(context.Background()); err != nil {
		t.Errorf("Purchase() = %v, want nil on user cancellation", err)
	}
	if m.Unlocked() {
		t.Error("cancelled purchase must not unlock")
	}
}

// TestSettings_PersistAcrossReopen tests the file-backed flag
func TestSettings_PersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("OpenSettings() failed: %v", err)
	}
	if s.Unlocked() {
		t.Error("fresh settings should be locked")
	}
	if err := s.SetUnlocked(true); err != nil {
		t.Fatalf("SetUnlocked() failed: %v", err)
	}

	reopened, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.Unlocked() {
		t.Error("unlock flag not persisted")
	}
}

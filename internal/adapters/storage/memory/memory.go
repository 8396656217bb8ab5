package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-checkout/internal/core/domain"
)

// Catalog is an in-memory ProductCatalog keyed by game id.
type Catalog struct {
	mu     sync.RWMutex
	prices map[string]string
}

func NewCatalog(prices map[string]string) *Catalog {
	m := make(map[string]string, len(prices))
	for k, v := range prices {
		m[k] = v
	}
	return &Catalog{prices: m}
}

func (c *Catalog) PriceOf(_ context.Context, productID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[productID]
	if !ok || p == "" {
		return "", domain.ErrProductNotFound
	}
	return p, nil
}

// Ledger is an in-memory OrderLedger with the same one-row-per-processor-order
// rule as the Postgres table.
type Ledger struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	byOrder map[string]int
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{byOrder: make(map[string]int), now: time.Now}
}

func (l *Ledger) Record(_ context.Context, entry domain.LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.byOrder[entry.ProcessorOrderID]; dup {
		return false, nil
	}
	entry.CreatedAt = l.now().UTC()
	l.byOrder[entry.ProcessorOrderID] = len(l.entries)
	l.entries = append(l.entries, entry)
	return true, nil
}

func (l *Ledger) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.UserID == userID && e.ProductID == productID && e.Status == domain.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) ListByUser(_ context.Context, userID string) ([]domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *Ledger) FindByProcessorOrder(_ context.Context, processorOrderID string) (*domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byOrder[processorOrderID]
	if !ok {
		return nil, nil
	}
	e := l.entries[i]
	return &e, nil
}

// Entries returns a copy of every recorded entry in insertion order.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

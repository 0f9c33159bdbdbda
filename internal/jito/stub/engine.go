// Package stub provides an in-memory block engine for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-dispatch/internal/jito"
)

// Engine implements jito.BlockEngine. Bundles land immediately unless Status is set.
type Engine struct {
	mu sync.Mutex

	// SendErr is returned by SendBundle when set.
	SendErr error
	// Status is reported for every bundle; defaults to Landed.
	Status jito.BundleStatus
	// LandedSlot is reported for landed bundles.
	LandedSlot int64
	// TipAccounts is returned by GetTipAccounts.
	TipAccounts []string
	TipErr      error

	bundles [][][]byte
	counts  map[string]int
}

// NewEngine creates a stub block engine.
func NewEngine() *Engine {
	return &Engine{
		Status:      jito.BundleLanded,
		LandedSlot:  2000,
		TipAccounts: jito.DefaultTipAccounts[:1],
		counts:      make(map[string]int),
	}
}

func (e *Engine) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts["sendBundle"]++

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.SendErr != nil {
		return "", e.SendErr
	}
	if len(txs) > jito.MaxBundleSize {
		return "", jito.ErrBundleTooLarge
	}
	e.bundles = append(e.bundles, txs)
	return fmt.Sprintf("bundle-%d", len(e.bundles)), nil
}

func (e *Engine) GetInflightBundleStatuses(_ context.Context, bundleIDs []string) ([]jito.InflightStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts["getInflightBundleStatuses"]++

	out := make([]jito.InflightStatus, len(bundleIDs))
	for i, id := range bundleIDs {
		out[i] = jito.InflightStatus{BundleID: id, Status: e.Status}
		if e.Status == jito.BundleLanded {
			slot := e.LandedSlot
			out[i].LandedSlot = &slot
		}
	}
	return out, nil
}

func (e *Engine) GetBundleStatuses(_ context.Context, bundleIDs []string) ([]*jito.BundleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts["getBundleStatuses"]++

	out := make([]*jito.BundleResult, len(bundleIDs))
	if e.Status != jito.BundleLanded {
		return out, nil
	}
	for i, id := range bundleIDs {
		out[i] = &jito.BundleResult{BundleID: id, Slot: e.LandedSlot, ConfirmationStatus: "confirmed"}
	}
	return out, nil
}

func (e *Engine) GetTipAccounts(_ context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts["getTipAccounts"]++

	if e.TipErr != nil {
		return nil, e.TipErr
	}
	return e.TipAccounts, nil
}

// Bundles returns the submitted bundles in order.
func (e *Engine) Bundles() [][][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][][]byte(nil), e.bundles...)
}

// Calls returns how many times method was invoked.
func (e *Engine) Calls(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[method]
}

// TotalCalls returns the number of calls across all methods.
func (e *Engine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.counts {
		total += n
	}
	return total
}

var _ jito.BlockEngine = (*Engine)(nil)

package jito

import (
	"context"
	"sync"

	"github.com/mr-tron/base58"
)

// DefaultTipAccounts are the published mainnet tip accounts, used when getTipAccounts fails.
var DefaultTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// TipAccounts caches the engine's tip accounts and hands them out round-robin.
type TipAccounts struct {
	fallback []string

	mu       sync.Mutex
	accounts []string
	next     int
}

// NewTipAccounts creates a cache falling back to fallback (DefaultTipAccounts when empty).
func NewTipAccounts(fallback []string) *TipAccounts {
	if len(fallback) == 0 {
		fallback = DefaultTipAccounts
	}
	return &TipAccounts{fallback: validAccounts(fallback)}
}

// Next returns a tip account, fetching the list from engine on first use.
// A failed fetch falls back to the configured list and is retried on the next call.
func (t *TipAccounts) Next(ctx context.Context, engine BlockEngine) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.accounts) == 0 && engine != nil {
		if fetched, err := engine.GetTipAccounts(ctx); err == nil {
			t.accounts = validAccounts(fetched)
		}
	}

	pool := t.accounts
	if len(pool) == 0 {
		pool = t.fallback
	}
	if len(pool) == 0 {
		return "", ErrNoTipAccounts
	}

	acct := pool[t.next%len(pool)]
	t.next++
	return acct, nil
}

// validAccounts keeps only base58 strings decoding to 32 bytes.
func validAccounts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		b, err := base58.Decode(a)
		if err != nil || len(b) != 32 {
			continue
		}
		out = append(out, a)
	}
	return out
}

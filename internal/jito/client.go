package jito

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-dispatch/internal/solana"
)

// Client implements BlockEngine over the block engine's JSON-RPC bundle API.
type Client struct {
	rpc *solana.HTTPClient
}

// NewClient creates a block-engine client for url (e.g. https://mainnet.block-engine.jito.wtf/api/v1/bundles).
// Options are the same as for the Solana RPC client.
func NewClient(url string, opts ...solana.ClientOption) *Client {
	return &Client{rpc: solana.NewHTTPClient(url, opts...)}
}

// Endpoint returns the URL the client talks to.
func (c *Client) Endpoint() string {
	return c.rpc.Endpoint()
}

// SendBundle submits base58-encoded transactions and returns the bundle ID.
func (c *Client) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	if len(txs) == 0 {
		return "", ErrEmptyBundle
	}
	if len(txs) > MaxBundleSize {
		return "", fmt.Errorf("%w: %d > %d", ErrBundleTooLarge, len(txs), MaxBundleSize)
	}

	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = base58.Encode(tx)
	}

	var bundleID string
	if err := c.rpc.Call(ctx, "sendBundle", []interface{}{encoded}, &bundleID); err != nil {
		return "", err
	}
	if bundleID == "" {
		return "", fmt.Errorf("sendBundle: empty bundle id")
	}
	return bundleID, nil
}

type inflightResult struct {
	Value []InflightStatus `json:"value"`
}

// GetInflightBundleStatuses calls getInflightBundleStatuses.
func (c *Client) GetInflightBundleStatuses(ctx context.Context, bundleIDs []string) ([]InflightStatus, error) {
	if len(bundleIDs) == 0 {
		return nil, nil
	}

	var result inflightResult
	if err := c.rpc.Call(ctx, "getInflightBundleStatuses", []interface{}{bundleIDs}, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

type bundleStatusesResult struct {
	Value []*BundleResult `json:"value"`
}

// GetBundleStatuses calls getBundleStatuses.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]*BundleResult, error) {
	if len(bundleIDs) == 0 {
		return nil, nil
	}

	var result bundleStatusesResult
	if err := c.rpc.Call(ctx, "getBundleStatuses", []interface{}{bundleIDs}, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// GetTipAccounts calls getTipAccounts.
func (c *Client) GetTipAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.rpc.Call(ctx, "getTipAccounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Compile-time interface check.
var _ BlockEngine = (*Client)(nil)

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"solana-dispatch/internal/domain"
)

// ComputePlanID computes a deterministic fingerprint of a plan's contents.
// Formula: SHA256(total|wallets|shape|mode|seed|group;group;...)
// where group = index:kind:delay:tip:[wallet=amount,...].
// Returns hex-encoded hash (64 characters).
func ComputePlanID(p *domain.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|%s|%s|%d|",
		p.TotalAmount,
		p.WalletCount,
		p.Shape,
		p.Stealth.Mode,
		p.Seed,
	)

	for _, g := range p.Groups {
		fmt.Fprintf(&b, "%d:%s:%.6f:%d:[", g.Index, g.Kind, g.DelayBlocks, g.TipAmount)
		for i, a := range g.Allocations {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s=%d", a.Address(), a.Amount)
		}
		b.WriteString("];")
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

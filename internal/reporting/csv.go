package reporting

import (
	"fmt"
	"strings"

	"solana-dispatch/internal/domain"
)

// RenderOutcomesCSV renders per-wallet outcomes as CSV string.
func RenderOutcomesCSV(outcomes []domain.TransactionOutcome) string {
	var sb strings.Builder

	// Header
	sb.WriteString("wallet_index,wallet,group,status,amount_sol,signature,bundle_id,endpoint_id,")
	sb.WriteString("slot,confirmation_ms,fee_lamports,tip_lamports,error_kind,error\n")

	// Rows
	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("%d,%s,%d,%s,%.9f,%s,%s,%s,%d,%d,%d,%d,%s,%s\n",
			o.WalletIndex,
			o.Wallet,
			o.Group,
			o.Status,
			o.Amount.SOL(),
			o.Signature,
			o.BundleID,
			o.EndpointID,
			o.Slot,
			o.ConfirmationTimeMs,
			o.FeeLamports,
			o.TipLamports,
			o.ErrKind,
			csvField(o.ErrorDetail()),
		))
	}

	return sb.String()
}

// csvField quotes s when it contains a separator, quote or newline.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

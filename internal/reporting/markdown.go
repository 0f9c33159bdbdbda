// Package reporting renders execution summaries for operators.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-dispatch/internal/domain"
)

// RenderSummaryMarkdown renders an execution summary as Markdown string.
func RenderSummaryMarkdown(s *domain.ExecutionSummary) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Operation %s\n\n", s.OperationID))
	sb.WriteString(fmt.Sprintf("State: **%s**\n\n", s.State))
	if s.AbortReason != "" {
		sb.WriteString(fmt.Sprintf("Abort reason: %s\n\n", s.AbortReason))
	}

	// Overview
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Plan | %s |\n", s.PlanID))
	sb.WriteString(fmt.Sprintf("| Shape | %s |\n", s.Shape))
	sb.WriteString(fmt.Sprintf("| Stealth Mode | %s |\n", s.StealthMode))
	sb.WriteString(fmt.Sprintf("| Total | %.9f SOL |\n", s.TotalAmount.SOL()))
	sb.WriteString(fmt.Sprintf("| Wallets | %d |\n", s.WalletCount))
	sb.WriteString(fmt.Sprintf("| Confirmed | %d |\n", s.Confirmed))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", s.Failed))
	sb.WriteString(fmt.Sprintf("| Timed Out | %d |\n", s.TimedOut))
	sb.WriteString(fmt.Sprintf("| Success Rate | %.2f%% |\n", s.SuccessRate))
	sb.WriteString(fmt.Sprintf("| Detection Risk | %s |\n", s.DetectionRisk))
	sb.WriteString(fmt.Sprintf("| Fees | %.9f SOL |\n", s.TotalFees.SOL()))
	sb.WriteString(fmt.Sprintf("| Tips | %.9f SOL |\n", s.TotalTips.SOL()))
	if !s.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("| Started | %s |\n", s.StartedAt.UTC().Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Duration | %s |\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))
	}
	sb.WriteString("\n")

	// Confirmation latency
	sb.WriteString("## Confirmation Latency\n\n")
	if s.Confirmed > 0 {
		sb.WriteString(fmt.Sprintf("avg %.1f ms | min %d ms | max %d ms\n\n",
			s.AvgConfirmationMs, s.MinConfirmationMs, s.MaxConfirmationMs))
	} else {
		sb.WriteString("No confirmed transactions.\n\n")
	}

	// Outcomes
	sb.WriteString("## Wallets\n\n")
	if len(s.Outcomes) == 0 {
		sb.WriteString("No outcomes recorded.\n")
		return sb.String()
	}
	sb.WriteString("| # | Wallet | Group | Status | Amount (SOL) | Endpoint | Confirm (ms) | Error |\n")
	sb.WriteString("|---|--------|-------|--------|--------------|----------|--------------|-------|\n")
	for _, o := range s.Outcomes {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s | %.9f | %s | %d | %s |\n",
			o.WalletIndex, o.Wallet, o.Group, o.Status, o.Amount.SOL(),
			o.EndpointID, o.ConfirmationTimeMs, markdownCell(o.ErrorDetail())))
	}

	return sb.String()
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

package app

import (
	"time"

	"solana-dispatch/internal/domain"
)

// SummaryView is the JSON form of an ExecutionSummary.
type SummaryView struct {
	OperationID       string        `json:"operation_id"`
	PlanID            string        `json:"plan_id"`
	State             string        `json:"state"`
	Shape             string        `json:"shape"`
	StealthMode       string        `json:"stealth_mode"`
	TotalSOL          float64       `json:"total_sol"`
	WalletCount       int           `json:"wallet_count"`
	Confirmed         int           `json:"confirmed"`
	Failed            int           `json:"failed"`
	TimedOut          int           `json:"timed_out"`
	SuccessRate       float64       `json:"success_rate"`
	AvgConfirmationMs float64       `json:"avg_confirmation_ms"`
	MinConfirmationMs int64         `json:"min_confirmation_ms"`
	MaxConfirmationMs int64         `json:"max_confirmation_ms"`
	TotalFeesSOL      float64       `json:"total_fees_sol"`
	TotalTipsSOL      float64       `json:"total_tips_sol"`
	DetectionRisk     string        `json:"detection_risk"`
	AbortReason       string        `json:"abort_reason,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Outcomes          []OutcomeView `json:"outcomes,omitempty"`
}

// OutcomeView is the JSON form of a TransactionOutcome.
type OutcomeView struct {
	WalletIndex        int        `json:"wallet_index"`
	Wallet             string     `json:"wallet"`
	Group              int        `json:"group"`
	Status             string     `json:"status"`
	AmountSOL          float64    `json:"amount_sol"`
	Signature          string     `json:"signature,omitempty"`
	BundleID           string     `json:"bundle_id,omitempty"`
	Endpoint           string     `json:"endpoint,omitempty"`
	Slot               int64      `json:"slot,omitempty"`
	ConfirmationTimeMs int64      `json:"confirmation_time_ms,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ErrKind            string     `json:"error_kind,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// NewSummaryView converts s for JSON output.
func NewSummaryView(s *domain.ExecutionSummary) SummaryView {
	v := SummaryView{
		OperationID:       s.OperationID,
		PlanID:            s.PlanID,
		State:             string(s.State),
		Shape:             s.Shape.String(),
		StealthMode:       s.StealthMode.String(),
		TotalSOL:          s.TotalAmount.SOL(),
		WalletCount:       s.WalletCount,
		Confirmed:         s.Confirmed,
		Failed:            s.Failed,
		TimedOut:          s.TimedOut,
		SuccessRate:       s.SuccessRate,
		AvgConfirmationMs: s.AvgConfirmationMs,
		MinConfirmationMs: s.MinConfirmationMs,
		MaxConfirmationMs: s.MaxConfirmationMs,
		TotalFeesSOL:      s.TotalFees.SOL(),
		TotalTipsSOL:      s.TotalTips.SOL(),
		DetectionRisk:     string(s.DetectionRisk),
		AbortReason:       s.AbortReason,
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
	}
	for _, o := range s.Outcomes {
		ov := OutcomeView{
			WalletIndex:        o.WalletIndex,
			Wallet:             o.Wallet,
			Group:              o.Group,
			Status:             string(o.Status),
			AmountSOL:          o.Amount.SOL(),
			Signature:          o.Signature,
			BundleID:           o.BundleID,
			Endpoint:           o.EndpointID,
			Slot:               o.Slot,
			ConfirmationTimeMs: o.ConfirmationTimeMs,
			ErrKind:            string(o.ErrKind),
			Error:              o.ErrorDetail(),
		}
		if !o.ConfirmedAt.IsZero() {
			t := o.ConfirmedAt
			ov.ConfirmedAt = &t
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}

// PlanView is the JSON form of a Plan, used for dry runs.
type PlanView struct {
	PlanID      string      `json:"plan_id"`
	Seed        int64       `json:"seed"`
	Shape       string      `json:"shape"`
	StealthMode string      `json:"stealth_mode"`
	TotalSOL    float64     `json:"total_sol"`
	WalletCount int         `json:"wallet_count"`
	Groups      []GroupView `json:"groups"`
}

// GroupView is one execution group of a PlanView.
type GroupView struct {
	Index       int       `json:"index"`
	Kind        string    `json:"kind"`
	DelayBlocks float64   `json:"delay_blocks"`
	TipSOL      float64   `json:"tip_sol,omitempty"`
	Wallets     []int     `json:"wallets"`
	AmountsSOL  []float64 `json:"amounts_sol"`
}

// NewPlanView converts p for JSON output.
func NewPlanView(p *domain.Plan) PlanView {
	v := PlanView{
		PlanID:      p.ID,
		Seed:        p.Seed,
		Shape:       p.Shape.String(),
		StealthMode: p.Stealth.Mode.String(),
		TotalSOL:    p.TotalAmount.SOL(),
		WalletCount: p.WalletCount,
		Groups:      make([]GroupView, 0, len(p.Groups)),
	}
	for _, g := range p.Groups {
		gv := GroupView{
			Index:       g.Index,
			Kind:        g.Kind.String(),
			DelayBlocks: g.DelayBlocks,
			TipSOL:      g.TipAmount.SOL(),
		}
		for _, a := range g.Allocations {
			gv.Wallets = append(gv.Wallets, a.Index)
			gv.AmountsSOL = append(gv.AmountsSOL, a.Amount.SOL())
		}
		v.Groups = append(v.Groups, gv)
	}
	return v
}

// EndpointView is the JSON form of an endpoint's health.
type EndpointView struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Role                string     `json:"role"`
	Priority            int        `json:"priority"`
	EffectivePriority   int        `json:"effective_priority"`
	Healthy             bool       `json:"healthy"`
	LatencyMs           float64    `json:"latency_ms"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
}

// NewEndpointViews converts a pool health snapshot for JSON output.
func NewEndpointViews(health []domain.EndpointHealth) []EndpointView {
	out := make([]EndpointView, 0, len(health))
	for _, h := range health {
		v := EndpointView{
			ID:                  h.Endpoint.ID,
			URL:                 h.Endpoint.URL,
			Role:                string(h.Endpoint.Role),
			Priority:            h.Endpoint.Priority,
			EffectivePriority:   h.EffectivePriority,
			Healthy:             h.Healthy,
			LatencyMs:           h.LatencyMs,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastError:           h.LastError,
		}
		if !h.LastCheckedAt.IsZero() {
			t := h.LastCheckedAt
			v.LastCheckedAt = &t
		}
		out = append(out, v)
	}
	return out
}

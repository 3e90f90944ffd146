package models

import "time"

// AuditEventType is the closed enum of governance events.
type AuditEventType string

const (
	EventConstraintActivated   AuditEventType = "constraint_activated"
	EventConstraintDeactivated AuditEventType = "constraint_deactivated"
	EventFalsifierPass         AuditEventType = "falsifier_pass"
	EventFalsifierTriggered    AuditEventType = "falsifier_triggered"
	EventVetoDowngrade         AuditEventType = "veto_downgrade"
	EventRiskBudgetAdjusted    AuditEventType = "risk_budget_adjusted"
	EventPositionCapApplied    AuditEventType = "position_cap_applied"
	EventPoolBuilt             AuditEventType = "pool_built"
	EventRegimeChanged         AuditEventType = "regime_changed"
	EventHypothesisApproved    AuditEventType = "hypothesis_approved"
	EventHypothesisSunset      AuditEventType = "hypothesis_sunset"
	EventHypothesisRejected    AuditEventType = "hypothesis_rejected"
)

// AuditEntry is one immutable record in the append-only governance log.
type AuditEntry struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     AuditEventType         `json:"event_type"`
	HypothesisID  string                 `json:"hypothesis_id,omitempty"`
	ConstraintID  string                 `json:"constraint_id,omitempty"`
	Symbol        string                 `json:"symbol,omitempty"`
	Strategy      string                 `json:"strategy,omitempty"`
	ActionDetails map[string]interface{} `json:"action_details,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
}

// AuditQuery filters the log. Zero values mean "any". Results come back
// in timestamp order; a governance effect on a trading decision must be
// findable with a single symbol+time-range query.
type AuditQuery struct {
	Symbol       string
	ConstraintID string
	EventType    AuditEventType
	From         time.Time
	To           time.Time
	Limit        int
}

package models

// ResolveRequest asks for the resolved directives of one symbol.
type ResolveRequest struct {
	Symbol string `param:"symbol" validate:"required"`
}

// AuditRequest filters the governance log. From and To accept RFC3339 or
// plain dates; zero values mean unbounded. Date is a shortcut expanding
// to the whole UTC day and wins over From/To when set.
type AuditRequest struct {
	Symbol       string `query:"symbol"`
	ConstraintID string `query:"constraint_id"`
	Event        string `query:"event"`
	From         string `query:"from"`
	To           string `query:"to"`
	Date         string `query:"date"`
	Limit        int    `query:"limit" default:"500" validate:"gte=0,lte=10000"`
}

// HypothesisSummary is the read-only listing view. Statement and evidence
// stay out of machine-readable responses; they are for the review
// process, not for anything downstream of this API.
type HypothesisSummary struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Status        HypothesisStatus `json:"status"`
	Scope         Scope            `json:"scope"`
	ReviewCadence string           `json:"review_cadence"`
	Falsifiers    int              `json:"falsifiers"`
	ConstraintIDs []string         `json:"constraint_ids,omitempty"`
}

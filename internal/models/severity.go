package models

// Severity ranks findings produced by the analyzers, from routine to
// needs-attention-now.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

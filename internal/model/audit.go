package model

import "time"

// AuditKind names the decision an audit event records.
type AuditKind string

const (
	AuditElimination AuditKind = "elimination"
	AuditCrossCheck  AuditKind = "cross_check"
	AuditVerify      AuditKind = "verification"
	AuditLoop        AuditKind = "loop_breaker"
	AuditSanitize    AuditKind = "sanitizer"
	AuditRun         AuditKind = "run"
)

// AuditEvent is one write-only audit record.
type AuditEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	ThreadKey string    `json:"thread_key,omitempty"`
	Item      int       `json:"item"`
	Kind      AuditKind `json:"kind"`
	Code      string    `json:"code,omitempty"`
	Summary   string    `json:"summary"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

package domain

import "time"

type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "INFO"
	SeverityWarning  AuditSeverity = "WARNING"
	SeveritySecurity AuditSeverity = "SECURITY"
)

type AuditCategory string

const (
	CategorySession   AuditCategory = "SESSION"
	CategoryMedia     AuditCategory = "MEDIA"
	CategoryDirectory AuditCategory = "DIRECTORY"
	CategoryDenied    AuditCategory = "DENIED"
)

// AuditEntry is one line of the server log; the per-user slice of the log is
// the user's timeline.
type AuditEntry struct {
	ID          int64         `json:"id"`
	Actor       string        `json:"username"`
	Description string        `json:"description"`
	Severity    AuditSeverity `json:"severity"`
	Category    AuditCategory `json:"category"`
	At          time.Time     `json:"date"`
}

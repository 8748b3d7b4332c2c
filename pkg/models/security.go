package models

import "time"

// Security event kinds.
const (
	EventAuthSuccess         = "AUTH_SUCCESS"
	EventAuthFailure         = "AUTH_FAILURE"
	EventUnauthorizedAccess  = "UNAUTHORIZED_ACCESS"
	EventInjectionAttempt    = "INJECTION_ATTEMPT"
	EventRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousActivity  = "SUSPICIOUS_ACTIVITY"
	EventDataAccess          = "DATA_ACCESS"
	EventAdminAction         = "ADMIN_ACTION"
	EventErrorOccurred       = "ERROR_OCCURRED"
	EventConfigurationChange = "CONFIGURATION_CHANGE"
	EventIntegrityFailure    = "INTEGRITY_FAILURE"
)

// Severity of a security event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SecurityEvent is one append-only security log record.
type SecurityEvent struct {
	Timestamp time.Time
	Kind      string
	Severity  Severity
	Context   map[string]any
}

// ThreatFinding is one injection-signature match inside a request.
type ThreatFinding struct {
	Pattern string `json:"pattern"`
	Field   string `json:"field"`
	Value   string `json:"value"`
}

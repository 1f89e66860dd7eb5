package audit

import (
	"time"
)

// Purge outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted" // zone could not be resolved, nothing was sent
)

// PurgeEvent records one purge attempt
type PurgeEvent struct {
	TriggerID  string   `json:"trigger_id"`
	Trigger    string   `json:"trigger"`
	Kind       string   `json:"kind"` // full, selective
	ZoneID     string   `json:"zone_id"`
	URLs       []string `json:"urls,omitempty"`
	Outcome    string   `json:"outcome"`
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message"`
	ErrorType  string   `json:"error_type"`

	Duration  float64   `json:"duration"` // seconds
	CreatedAt time.Time `json:"created_at"`
	DaemonID  string    `json:"daemon_id"`
}

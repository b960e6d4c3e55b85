package models

import "time"

const (
	RunStatusRunning = "running"
	RunStatusParsed  = "parsed"
	RunStatusEmpty   = "empty"
	RunStatusFailed  = "failed"
)

// ParseRun is one fetch-and-parse pass over a meeting's agenda report.
type ParseRun struct {
	RunID         string    `json:"run_id"`
	MeetingKey    string    `json:"meeting_key"`
	SourceURL     string    `json:"source_url,omitempty"`
	ContentMD5    string    `json:"content_md5,omitempty"`
	Status        string    `json:"status"`
	Documents     int       `json:"documents"`
	EmailApproval int       `json:"email_approval"`
	Unmatched     []string  `json:"unmatched_cosigners"`
	FailReason    string    `json:"fail_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MeetingSummary is the per-meeting digest served by the API and written
// next to each run's artifacts.
type MeetingSummary struct {
	MeetingKey         string         `json:"meeting"`
	Documents          int            `json:"documents"`
	EmailApproval      int            `json:"email_approval"`
	UnmatchedCosigners []string       `json:"unmatched_cosigners"`
	VendorColumns      []string       `json:"vendor_columns"`
	ByResult           map[string]int `json:"by_result,omitempty"`
	AgendaItems        int            `json:"agenda_items,omitempty"`
}

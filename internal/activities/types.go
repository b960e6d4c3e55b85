package activities

type ListMeetingsInput struct {
	Year  int    `json:"year"`
	Group string `json:"group,omitempty"`
	// Refresh re-reads the meeting listing page before querying storage.
	Refresh bool `json:"refresh"`
}

type MeetingRef struct {
	MeetingKey string `json:"meeting_key"`
	AgendaURL  string `json:"agenda_url"`
}

type ListMeetingsOutput struct {
	Meetings []MeetingRef `json:"meetings"`
}

type FetchAgendaInput struct {
	MeetingKey string `json:"meeting_key"`
	// AgendaURL overrides the location derived from the stored meeting.
	AgendaURL string `json:"agenda_url,omitempty"`
}

type FetchAgendaOutput struct {
	Path       string `json:"path,omitempty"`
	SourceURL  string `json:"source_url"`
	ContentMD5 string `json:"content_md5,omitempty"`
	Bytes      int    `json:"bytes"`
	// Missing is set when the meeting has not published a report.
	Missing bool `json:"missing"`
}

type ParseAgendaInput struct {
	MeetingKey string `json:"meeting_key"`
	Path       string `json:"path"`
}

type ParseAgendaOutput struct {
	Format        string   `json:"format"`
	Documents     int      `json:"documents"`
	EmailApproval int      `json:"email_approval"`
	Unmatched     []string `json:"unmatched_cosigners"`
	CacheHit      bool     `json:"cache_hit"`
}

type StoreTDocsInput struct {
	MeetingKey string `json:"meeting_key"`
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
}

type StoreTDocsOutput struct {
	Stored int `json:"stored"`
}

type WriteMeetingSummaryInput struct {
	MeetingKey string `json:"meeting_key"`
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
}

type WriteMeetingSummaryOutput struct {
	SummaryPath string `json:"summary_path"`
	TDocsPath   string `json:"tdocs_path"`
}

type RecordRunInput struct {
	RunID         string   `json:"run_id"`
	MeetingKey    string   `json:"meeting_key"`
	SourceURL     string   `json:"source_url,omitempty"`
	ContentMD5    string   `json:"content_md5,omitempty"`
	Status        string   `json:"status"`
	Documents     int      `json:"documents"`
	EmailApproval int      `json:"email_approval"`
	Unmatched     []string `json:"unmatched_cosigners,omitempty"`
	FailReason    string   `json:"fail_reason,omitempty"`
}

type WriteYearSummaryInput struct {
	Year    int            `json:"year"`
	Group   string         `json:"group,omitempty"`
	Summary map[string]any `json:"summary"`
}

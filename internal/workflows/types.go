package workflows

type MeetingParseInput struct {
	MeetingKey string `json:"meeting_key"`
	// AgendaURL overrides the report location derived from the stored meeting.
	AgendaURL string `json:"agenda_url,omitempty"`
}

type YearParseInput struct {
	Year                  int    `json:"year"`
	Group                 string `json:"group,omitempty"`
	RefreshListing        bool   `json:"refresh_listing"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

type MeetingStatus struct {
	MeetingKey    string            `json:"meeting_key"`
	RunID         string            `json:"run_id"`
	CurrentStep   string            `json:"current_step"`
	Status        string            `json:"status"`
	FailReason    string            `json:"fail_reason,omitempty"`
	Documents     int               `json:"documents"`
	EmailApproval int               `json:"email_approval"`
	Unmatched     []string          `json:"unmatched_cosigners,omitempty"`
	Steps         map[string]string `json:"steps"`
}

type YearParseProgress struct {
	Year          int               `json:"year"`
	Group         string            `json:"group,omitempty"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	Empty         int               `json:"empty"`
	PerMeeting    map[string]string `json:"per_meeting_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

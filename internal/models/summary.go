package models

import "tdocflow/internal/tdocs"

// SummaryOf digests a parsed table.
func SummaryOf(meetingKey string, t *tdocs.Table, unmatched []string) MeetingSummary {
	byResult := map[string]int{}
	for _, d := range t.Documents() {
		byResult[d.Result]++
	}
	items, _ := t.ByAgendaItem()
	if unmatched == nil {
		unmatched = []string{}
	}
	return MeetingSummary{
		MeetingKey:         meetingKey,
		Documents:          t.Len(),
		EmailApproval:      t.EmailApprovalCount(),
		UnmatchedCosigners: unmatched,
		VendorColumns:      t.VendorColumns(),
		ByResult:           byResult,
		AgendaItems:        len(items),
	}
}

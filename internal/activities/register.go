package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListMeetingsActivity)
	w.RegisterActivity(a.FetchAgendaActivity)
	w.RegisterActivity(a.ParseAgendaActivity)
	w.RegisterActivity(a.StoreTDocsActivity)
	w.RegisterActivity(a.WriteMeetingSummaryActivity)
	w.RegisterActivity(a.RecordRunActivity)
	w.RegisterActivity(a.WriteYearSummaryActivity)
}

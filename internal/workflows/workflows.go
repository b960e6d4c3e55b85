package workflows

import (
	"strconv"
	"strings"
	"time"

	"tdocflow/internal/activities"
	"tdocflow/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetMeetingStatus = "GetMeetingStatus"
	QueryGetProgress      = "GetProgress"
)

// MeetingWorkflowID is the workflow ID used for a meeting's parse run, so at
// most one run per meeting is active.
func MeetingWorkflowID(meetingKey string) string {
	return "meeting-" + sanitizeID(meetingKey)
}

func YearWorkflowID(year int, group string) string {
	id := "year-" + strconv.Itoa(year)
	if group != "" {
		id += "-" + sanitizeID(group)
	}
	return id
}

// MeetingParseWorkflow fetches, parses, stores and summarises one meeting's
// agenda report. It returns "parsed", or "empty" when the meeting has no
// report or the report holds no documents.
func MeetingParseWorkflow(ctx workflow.Context, input MeetingParseInput) (string, error) {
	status := MeetingStatus{
		MeetingKey:  input.MeetingKey,
		RunID:       workflow.GetInfo(ctx).WorkflowExecution.RunID,
		CurrentStep: "init",
		Status:      models.RunStatusRunning,
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetMeetingStatus, func() (MeetingStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	record := func(in activities.RecordRunInput) {
		in.RunID = status.RunID
		in.MeetingKey = input.MeetingKey
		_ = workflow.ExecuteActivity(ctx, "RecordRunActivity", in).Get(ctx, nil)
	}
	fail := func(err error) (string, error) {
		status.Status = models.RunStatusFailed
		status.FailReason = err.Error()
		status.Steps[status.CurrentStep] = "failed"
		record(activities.RecordRunInput{Status: models.RunStatusFailed, FailReason: status.FailReason})
		return "", err
	}
	record(activities.RecordRunInput{Status: models.RunStatusRunning, SourceURL: input.AgendaURL})

	status.CurrentStep = "fetch"
	status.Steps[status.CurrentStep] = "processing"
	var fetched activities.FetchAgendaOutput
	if err := workflow.ExecuteActivity(ctx, "FetchAgendaActivity", activities.FetchAgendaInput{
		MeetingKey: input.MeetingKey,
		AgendaURL:  input.AgendaURL,
	}).Get(ctx, &fetched); err != nil {
		return fail(err)
	}
	status.Steps[status.CurrentStep] = "done"
	if fetched.Missing {
		status.Status = models.RunStatusEmpty
		status.FailReason = "agenda report not published"
		record(activities.RecordRunInput{Status: models.RunStatusEmpty, SourceURL: fetched.SourceURL, FailReason: status.FailReason})
		return status.Status, nil
	}

	status.CurrentStep = "parse"
	status.Steps[status.CurrentStep] = "processing"
	var parsed activities.ParseAgendaOutput
	if err := workflow.ExecuteActivity(ctx, "ParseAgendaActivity", activities.ParseAgendaInput{
		MeetingKey: input.MeetingKey,
		Path:       fetched.Path,
	}).Get(ctx, &parsed); err != nil {
		return fail(err)
	}
	status.Steps[status.CurrentStep] = "done"
	status.Documents = parsed.Documents
	status.EmailApproval = parsed.EmailApproval
	status.Unmatched = parsed.Unmatched
	if parsed.Documents == 0 {
		status.Status = models.RunStatusEmpty
		record(activities.RecordRunInput{Status: models.RunStatusEmpty, SourceURL: fetched.SourceURL, ContentMD5: fetched.ContentMD5})
		return status.Status, nil
	}

	status.CurrentStep = "store"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "StoreTDocsActivity", activities.StoreTDocsInput{
		MeetingKey: input.MeetingKey,
		RunID:      status.RunID,
		Path:       fetched.Path,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "summary"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteMeetingSummaryActivity", activities.WriteMeetingSummaryInput{
		MeetingKey: input.MeetingKey,
		RunID:      status.RunID,
		Path:       fetched.Path,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	status.Status = models.RunStatusParsed
	record(activities.RecordRunInput{
		Status:        models.RunStatusParsed,
		SourceURL:     fetched.SourceURL,
		ContentMD5:    fetched.ContentMD5,
		Documents:     parsed.Documents,
		EmailApproval: parsed.EmailApproval,
		Unmatched:     parsed.Unmatched,
	})
	return status.Status, nil
}

// YearParseWorkflow runs MeetingParseWorkflow for every stored meeting of a
// year, a bounded batch of children at a time.
func YearParseWorkflow(ctx workflow.Context, input YearParseInput) (string, error) {
	progress := YearParseProgress{
		Year:          input.Year,
		Group:         input.Group,
		PerMeeting:    map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (YearParseProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListMeetingsOutput
	if err := workflow.ExecuteActivity(ctx, "ListMeetingsActivity", activities.ListMeetingsInput{
		Year:    input.Year,
		Group:   input.Group,
		Refresh: input.RefreshListing,
	}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	refs := listOut.Meetings
	progress.Total = len(refs)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(refs); i += maxChildren {
		end := i + maxChildren
		if end > len(refs) {
			end = len(refs)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		batch := refs[i:end]
		for _, ref := range batch {
			progress.PerMeeting[ref.MeetingKey] = "processing"
			workflowID := MeetingWorkflowID(ref.MeetingKey)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, MeetingParseWorkflow, MeetingParseInput{
				MeetingKey: ref.MeetingKey,
				AgendaURL:  ref.AgendaURL,
			})
			futures = append(futures, f)
			progress.ChildWorkflow[ref.MeetingKey] = workflowID
		}

		for idx, f := range futures {
			key := batch[idx].MeetingKey
			var childStatus string
			if err := f.Get(ctx, &childStatus); err != nil {
				progress.Failed++
				progress.PerMeeting[key] = models.RunStatusFailed
				continue
			}
			if childStatus == models.RunStatusEmpty {
				progress.Empty++
			}
			progress.Done++
			progress.PerMeeting[key] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteYearSummaryActivity", activities.WriteYearSummaryInput{
		Year:  input.Year,
		Group: input.Group,
		Summary: map[string]any{
			"year":               input.Year,
			"group":              input.Group,
			"total":              progress.Total,
			"done":               progress.Done,
			"failed":             progress.Failed,
			"empty":              progress.Empty,
			"per_meeting_status": progress.PerMeeting,
			"generated_at":       workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("#", "-", " ", "", "_", "-", ".", "-", "/", "-").Replace(s)
	return s
}

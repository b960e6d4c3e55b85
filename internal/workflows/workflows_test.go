package workflows

import (
	"context"
	"errors"
	"testing"

	"tdocflow/internal/activities"
	"tdocflow/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerMeetingActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "RecordRunActivity", func(context.Context, activities.RecordRunInput) error { return nil })
	registerActivityName(env, "FetchAgendaActivity", func(context.Context, activities.FetchAgendaInput) (activities.FetchAgendaOutput, error) {
		return activities.FetchAgendaOutput{}, nil
	})
	registerActivityName(env, "ParseAgendaActivity", func(context.Context, activities.ParseAgendaInput) (activities.ParseAgendaOutput, error) {
		return activities.ParseAgendaOutput{}, nil
	})
	registerActivityName(env, "StoreTDocsActivity", func(context.Context, activities.StoreTDocsInput) (activities.StoreTDocsOutput, error) {
		return activities.StoreTDocsOutput{}, nil
	})
	registerActivityName(env, "WriteMeetingSummaryActivity", func(context.Context, activities.WriteMeetingSummaryInput) (activities.WriteMeetingSummaryOutput, error) {
		return activities.WriteMeetingSummaryOutput{}, nil
	})
}

func TestMeetingParseWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MeetingParseWorkflow)
	registerMeetingActivities(env)

	var finished activities.RecordRunInput
	env.OnActivity("RecordRunActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.RecordRunInput) error {
		if in.Status != models.RunStatusRunning {
			finished = in
		}
		return nil
	})
	env.OnActivity("FetchAgendaActivity", mock.Anything, activities.FetchAgendaInput{MeetingKey: "SA2#130"}).
		Return(activities.FetchAgendaOutput{Path: "/data/in/SA2_130/TdocsByAgenda.htm", SourceURL: "https://example.org/SA2_130/TdocsByAgenda.htm", ContentMD5: "abc"}, nil)
	env.OnActivity("ParseAgendaActivity", mock.Anything, activities.ParseAgendaInput{MeetingKey: "SA2#130", Path: "/data/in/SA2_130/TdocsByAgenda.htm"}).
		Return(activities.ParseAgendaOutput{Documents: 2, EmailApproval: 1, Unmatched: []string{"Acme Corp"}}, nil)
	env.OnActivity("StoreTDocsActivity", mock.Anything, mock.Anything).Return(activities.StoreTDocsOutput{Stored: 2}, nil)
	env.OnActivity("WriteMeetingSummaryActivity", mock.Anything, mock.Anything).Return(activities.WriteMeetingSummaryOutput{}, nil)

	env.ExecuteWorkflow(MeetingParseWorkflow, MeetingParseInput{MeetingKey: "SA2#130"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "parsed", out)
	require.Equal(t, models.RunStatusParsed, finished.Status)
	require.Equal(t, 2, finished.Documents)
	require.Equal(t, "abc", finished.ContentMD5)
	require.Equal(t, "SA2#130", finished.MeetingKey)
	require.Equal(t, []string{"Acme Corp"}, finished.Unmatched)

	val, err := env.QueryWorkflow(QueryGetMeetingStatus)
	require.NoError(t, err)
	var status MeetingStatus
	require.NoError(t, val.Get(&status))
	require.Equal(t, "done", status.Steps["summary"])
	require.Equal(t, 1, status.EmailApproval)
}

func TestMeetingParseWorkflowMissingReport(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MeetingParseWorkflow)
	registerMeetingActivities(env)

	env.OnActivity("RecordRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchAgendaActivity", mock.Anything, mock.Anything).Return(activities.FetchAgendaOutput{Missing: true}, nil)

	env.ExecuteWorkflow(MeetingParseWorkflow, MeetingParseInput{MeetingKey: "SA2#131"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "empty", out)
	env.AssertNotCalled(t, "ParseAgendaActivity", mock.Anything, mock.Anything)
}

func TestMeetingParseWorkflowEmptyTable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MeetingParseWorkflow)
	registerMeetingActivities(env)

	env.OnActivity("RecordRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchAgendaActivity", mock.Anything, mock.Anything).Return(activities.FetchAgendaOutput{Path: "/tmp/r.htm"}, nil)
	env.OnActivity("ParseAgendaActivity", mock.Anything, mock.Anything).Return(activities.ParseAgendaOutput{}, nil)

	env.ExecuteWorkflow(MeetingParseWorkflow, MeetingParseInput{MeetingKey: "SA2#130"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "empty", out)
	env.AssertNotCalled(t, "StoreTDocsActivity", mock.Anything, mock.Anything)
}

func TestMeetingParseWorkflowStoreFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MeetingParseWorkflow)
	registerMeetingActivities(env)

	var failed activities.RecordRunInput
	env.OnActivity("RecordRunActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.RecordRunInput) error {
		if in.Status == models.RunStatusFailed {
			failed = in
		}
		return nil
	})
	env.OnActivity("FetchAgendaActivity", mock.Anything, mock.Anything).Return(activities.FetchAgendaOutput{Path: "/tmp/r.htm"}, nil)
	env.OnActivity("ParseAgendaActivity", mock.Anything, mock.Anything).Return(activities.ParseAgendaOutput{Documents: 3}, nil)
	env.OnActivity("StoreTDocsActivity", mock.Anything, mock.Anything).Return(activities.StoreTDocsOutput{}, errors.New("connect postgres: connection refused"))

	env.ExecuteWorkflow(MeetingParseWorkflow, MeetingParseInput{MeetingKey: "SA2#130"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Equal(t, models.RunStatusFailed, failed.Status)
	require.Contains(t, failed.FailReason, "connection refused")
}

func TestYearParseWorkflowBatchesChildren(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(YearParseWorkflow)
	env.RegisterWorkflow(MeetingParseWorkflow)
	registerActivityName(env, "ListMeetingsActivity", func(context.Context, activities.ListMeetingsInput) (activities.ListMeetingsOutput, error) {
		return activities.ListMeetingsOutput{}, nil
	})
	registerActivityName(env, "WriteYearSummaryActivity", func(context.Context, activities.WriteYearSummaryInput) error { return nil })

	env.OnActivity("ListMeetingsActivity", mock.Anything, activities.ListMeetingsInput{Year: 2019, Group: "SA2"}).Return(activities.ListMeetingsOutput{
		Meetings: []activities.MeetingRef{
			{MeetingKey: "SA2#130"},
			{MeetingKey: "SA2#131"},
			{MeetingKey: "SA2#132"},
		},
	}, nil)
	env.OnWorkflow(MeetingParseWorkflow, mock.Anything, MeetingParseInput{MeetingKey: "SA2#130"}).Return("parsed", nil)
	env.OnWorkflow(MeetingParseWorkflow, mock.Anything, MeetingParseInput{MeetingKey: "SA2#131"}).Return("empty", nil)
	env.OnWorkflow(MeetingParseWorkflow, mock.Anything, MeetingParseInput{MeetingKey: "SA2#132"}).Return("", errors.New("boom"))

	var summary activities.WriteYearSummaryInput
	env.OnActivity("WriteYearSummaryActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.WriteYearSummaryInput) error {
		summary = in
		return nil
	})

	env.ExecuteWorkflow(YearParseWorkflow, YearParseInput{Year: 2019, Group: "SA2", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress YearParseProgress
	require.NoError(t, val.Get(&progress))
	require.Equal(t, 3, progress.Total)
	require.Equal(t, 2, progress.Done)
	require.Equal(t, 1, progress.Failed)
	require.Equal(t, 1, progress.Empty)
	require.Equal(t, "failed", progress.PerMeeting["SA2#132"])
	require.Equal(t, "meeting-sa2-131", progress.ChildWorkflow["SA2#131"])
	require.Equal(t, 2019, summary.Year)
	require.EqualValues(t, 3, summary.Summary["total"])
}

func TestWorkflowIDs(t *testing.T) {
	require.Equal(t, "meeting-sa2-129bis", MeetingWorkflowID("SA2#129BIS"))
	require.Equal(t, "year-2019", YearWorkflowID(2019, ""))
	require.Equal(t, "year-2019-sa2", YearWorkflowID(2019, "SA2"))
}

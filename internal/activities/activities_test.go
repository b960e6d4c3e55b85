package activities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tdocflow/internal/config"
	"tdocflow/internal/meetings"
	"tdocflow/internal/models"
	"tdocflow/internal/tdocs"
	"tdocflow/internal/util"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

const report = `<table>
<tr><th>TD#</th><th>Type</th><th>Title</th><th>Source</th><th>AI</th><th>Result</th><th>Comments</th></tr>
<tr><td>S2-1900001</td><td>CR</td><td>Fix</td><td>Nokia, Acme Corp</td><td>6.1</td><td>Revised</td><td>Revised to S2-1900002.</td></tr>
<tr><td>S2-1900002</td><td>CR</td><td>Fix</td><td>Nokia</td><td>6.1</td><td>For e-mail approval</td><td></td></tr>
</table>`

type fakeStore struct {
	mu       sync.Mutex
	meetings map[string]meetings.Meeting
	docs     map[string][]tdocs.Document
	runs     map[string]models.ParseRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{meetings: map[string]meetings.Meeting{}, docs: map[string][]tdocs.Document{}, runs: map[string]models.ParseRun{}}
}

func (f *fakeStore) UpsertMeeting(_ context.Context, m meetings.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings[m.Key] = m
	return nil
}

func (f *fakeStore) ListMeetings(_ context.Context, year int, group string) ([]meetings.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]meetings.Meeting, 0, len(f.meetings))
	for _, m := range f.meetings {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	c := meetings.NewCollection(all)
	if year != 0 {
		c = c.InYear(year)
	}
	if group != "" {
		c = c.ForGroup(group)
	}
	return c.All(), nil
}

func (f *fakeStore) GetMeeting(_ context.Context, key string) (meetings.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[key]
	if !ok {
		return meetings.Meeting{}, util.ErrMeetingNotFound
	}
	return m, nil
}

func (f *fakeStore) ReplaceMeetingTDocs(_ context.Context, meetingKey, _ string, docs []tdocs.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[meetingKey] = docs
	return nil
}

func (f *fakeStore) CreateRun(_ context.Context, run models.ParseRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.RunID] = run
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, run models.ParseRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.RunID] = run
	return nil
}

func newTestActivities(t *testing.T, srvURL string) (*Activities, *fakeStore, config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		DataInRoot:                  filepath.Join(root, "in"),
		DataOutRoot:                 filepath.Join(root, "out"),
		CacheDir:                    filepath.Join(root, "cache"),
		MaxLineageDepth:             10,
		IgnoreCrossMeetingRevisions: true,
		FetchTimeoutSecs:            5,
		AgendaFile:                  "TdocsByAgenda.htm",
	}
	if srvURL != "" {
		cfg.MeetingsURL = srvURL + "/meetings.htm"
	}
	store := newFakeStore()
	a := NewWithDeps(cfg, Deps{Meetings: store, TDocs: store, Runs: store})
	return a, store, cfg
}

func newReportServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/meetings.htm":
			_, _ = w.Write([]byte(`<table>
<tr><th>Meeting</th><th>Location</th><th>Start</th><th>End</th></tr>
<tr><td><a href="SA2_130/">SA2#130</a></td><td>Kochi</td><td>2019-01-21</td><td>2019-01-25</td></tr>
<tr><td><a href="SA2_131/">SA2#131</a></td><td>Tenerife</td><td>2019-02-25</td><td>2019-03-01</td></tr>
<tr><td><a href="SA2_128/">SA2#128</a></td><td>Vilnius</td><td>2018-07-02</td><td>2018-07-06</td></tr>
</table>`))
		case "/SA2_130/TdocsByAgenda.htm":
			_, _ = w.Write([]byte(report))
		case "/forbidden/TdocsByAgenda.htm":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestListMeetingsActivityRefreshesListing(t *testing.T) {
	srv := newReportServer()
	defer srv.Close()
	a, store, _ := newTestActivities(t, srv.URL)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a.ListMeetingsActivity)

	val, err := env.ExecuteActivity(a.ListMeetingsActivity, ListMeetingsInput{Year: 2019, Refresh: true})
	require.NoError(t, err)
	var out ListMeetingsOutput
	require.NoError(t, val.Get(&out))
	require.Len(t, store.meetings, 3)
	require.Len(t, out.Meetings, 2)
	require.Equal(t, "SA2#130", out.Meetings[0].MeetingKey)
	require.Equal(t, srv.URL+"/SA2_130/TdocsByAgenda.htm", out.Meetings[0].AgendaURL)
}

func TestFetchParseStoreSummarize(t *testing.T) {
	srv := newReportServer()
	defer srv.Close()
	a, store, cfg := newTestActivities(t, srv.URL)
	require.NoError(t, store.UpsertMeeting(context.Background(), meetings.Meeting{
		Key: "SA2#130", Group: "SA2", Number: "130", Start: time.Date(2019, 1, 21, 0, 0, 0, 0, time.UTC),
		URL: srv.URL + "/SA2_130/",
	}))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.FetchAgendaActivity, FetchAgendaInput{MeetingKey: "SA2#130"})
	require.NoError(t, err)
	var fetched FetchAgendaOutput
	require.NoError(t, val.Get(&fetched))
	require.False(t, fetched.Missing)
	require.Equal(t, filepath.Join(cfg.DataInRoot, "SA2_130", "TdocsByAgenda.htm"), fetched.Path)
	require.Equal(t, util.MD5Hex([]byte(report)), fetched.ContentMD5)

	val, err = env.ExecuteActivity(a.ParseAgendaActivity, ParseAgendaInput{MeetingKey: "SA2#130", Path: fetched.Path})
	require.NoError(t, err)
	var parsed ParseAgendaOutput
	require.NoError(t, val.Get(&parsed))
	require.Equal(t, 2, parsed.Documents)
	require.Equal(t, 1, parsed.EmailApproval)
	require.Equal(t, []string{"Acme Corp"}, parsed.Unmatched)
	require.Equal(t, "legacy-html", parsed.Format)
	require.False(t, parsed.CacheHit)

	val, err = env.ExecuteActivity(a.StoreTDocsActivity, StoreTDocsInput{MeetingKey: "SA2#130", RunID: "run-1", Path: fetched.Path})
	require.NoError(t, err)
	var stored StoreTDocsOutput
	require.NoError(t, val.Get(&stored))
	require.Equal(t, 2, stored.Stored)
	require.Equal(t, "SA2#130", store.docs["SA2#130"][0].Meeting)
	require.Equal(t, []string{"S2-1900002"}, store.docs["SA2#130"][0].FinalDocuments)

	val, err = env.ExecuteActivity(a.WriteMeetingSummaryActivity, WriteMeetingSummaryInput{MeetingKey: "SA2#130", RunID: "run-1", Path: fetched.Path})
	require.NoError(t, err)
	var written WriteMeetingSummaryOutput
	require.NoError(t, val.Get(&written))

	b, err := os.ReadFile(written.SummaryPath)
	require.NoError(t, err)
	var summary models.MeetingSummary
	require.NoError(t, json.Unmarshal(b, &summary))
	require.Equal(t, 2, summary.Documents)
	require.Equal(t, 1, summary.EmailApproval)
	require.Equal(t, []string{"Acme Corp"}, summary.UnmatchedCosigners)

	b, err = os.ReadFile(written.TDocsPath)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(b), "\n"))
}

func TestFetchAgendaActivityMissingAndForbidden(t *testing.T) {
	srv := newReportServer()
	defer srv.Close()
	a, _, _ := newTestActivities(t, srv.URL)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a.FetchAgendaActivity)

	val, err := env.ExecuteActivity(a.FetchAgendaActivity, FetchAgendaInput{MeetingKey: "SA2#131", AgendaURL: srv.URL + "/SA2_131/TdocsByAgenda.htm"})
	require.NoError(t, err)
	var out FetchAgendaOutput
	require.NoError(t, val.Get(&out))
	require.True(t, out.Missing)

	_, err = env.ExecuteActivity(a.FetchAgendaActivity, FetchAgendaInput{MeetingKey: "X", AgendaURL: srv.URL + "/forbidden/TdocsByAgenda.htm"})
	require.Error(t, err)

	_, err = env.ExecuteActivity(a.FetchAgendaActivity, FetchAgendaInput{MeetingKey: "SA2#999"})
	require.Error(t, err)
}

func TestRecordRunActivity(t *testing.T) {
	a, store, _ := newTestActivities(t, "")
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a.RecordRunActivity)

	_, err := env.ExecuteActivity(a.RecordRunActivity, RecordRunInput{RunID: "r1", MeetingKey: "SA2#130", Status: models.RunStatusRunning})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRunning, store.runs["r1"].Status)

	_, err = env.ExecuteActivity(a.RecordRunActivity, RecordRunInput{RunID: "r1", MeetingKey: "SA2#130", Status: models.RunStatusParsed, Documents: 2})
	require.NoError(t, err)
	require.Equal(t, 2, store.runs["r1"].Documents)
}

func TestWriteYearSummaryActivity(t *testing.T) {
	a, _, cfg := newTestActivities(t, "")
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a.WriteYearSummaryActivity)

	_, err := env.ExecuteActivity(a.WriteYearSummaryActivity, WriteYearSummaryInput{Year: 2019, Group: "SA2", Summary: map[string]any{"total": 2}})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cfg.DataOutRoot, "years", "2019-SA2.json"))
}

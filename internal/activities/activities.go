package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tdocflow/internal/cache"
	"tdocflow/internal/config"
	"tdocflow/internal/fetch"
	"tdocflow/internal/logger"
	"tdocflow/internal/meetings"
	"tdocflow/internal/metrics"
	"tdocflow/internal/models"
	"tdocflow/internal/storage"
	"tdocflow/internal/tdocs"
	"tdocflow/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// MeetingStore is the meeting persistence the activities need.
type MeetingStore interface {
	UpsertMeeting(ctx context.Context, m meetings.Meeting) error
	ListMeetings(ctx context.Context, year int, group string) ([]meetings.Meeting, error)
	GetMeeting(ctx context.Context, key string) (meetings.Meeting, error)
}

type TDocStore interface {
	ReplaceMeetingTDocs(ctx context.Context, meetingKey, runID string, docs []tdocs.Document) error
}

type RunStore interface {
	CreateRun(ctx context.Context, run models.ParseRun) error
	FinishRun(ctx context.Context, run models.ParseRun) error
}

// Fetcher retrieves a report or listing page.
type Fetcher interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

type Activities struct {
	cfg      config.Config
	log      *logger.Logger
	fetcher  Fetcher
	parse    cache.Parser
	cache    *cache.Store
	meetings MeetingStore
	tdocs    TDocStore
	runs     RunStore
}

// Deps carries the collaborators of Activities. Nil fields get defaults
// built from the config.
type Deps struct {
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Fetcher  Fetcher
	Cache    *cache.Store
	Meetings MeetingStore
	TDocs    TDocStore
	Runs     RunStore
}

func New(cfg config.Config, db *storage.DB, log *logger.Logger, m *metrics.Metrics) *Activities {
	return NewWithDeps(cfg, Deps{
		Log:      log,
		Metrics:  m,
		Meetings: storage.NewMeetingRepo(db),
		TDocs:    storage.NewTDocRepo(db),
		Runs:     storage.NewRunRepo(db),
	})
}

func NewWithDeps(cfg config.Config, d Deps) *Activities {
	log := logger.OrNop(d.Log)
	if d.Fetcher == nil {
		d.Fetcher = fetch.NewClient(time.Duration(cfg.FetchTimeoutSecs)*time.Second, log)
	}
	if d.Cache == nil {
		d.Cache = cache.NewStore(cfg.CacheDir, log, d.Metrics)
	}
	parser := tdocs.NewParser(tdocs.Options{
		IgnoreCrossMeetingRevisions: cfg.IgnoreCrossMeetingRevisions,
		MaxDepth:                    cfg.MaxLineageDepth,
	}, log)
	return &Activities{
		cfg:      cfg,
		log:      log,
		fetcher:  d.Fetcher,
		parse:    cache.ObservedParse(parser, d.Metrics),
		cache:    d.Cache,
		meetings: d.Meetings,
		tdocs:    d.TDocs,
		runs:     d.Runs,
	}
}

func (a *Activities) ListMeetingsActivity(ctx context.Context, in ListMeetingsInput) (ListMeetingsOutput, error) {
	if in.Refresh && a.cfg.MeetingsURL != "" {
		raw, err := a.fetcher.Get(ctx, a.cfg.MeetingsURL)
		if err != nil {
			return ListMeetingsOutput{}, fmt.Errorf("fetch meeting listing: %w", err)
		}
		listing, err := meetings.ParseListing(raw, a.cfg.MeetingsURL, a.log)
		if err != nil {
			return ListMeetingsOutput{}, temporal.NewNonRetryableApplicationError("unreadable meeting listing", "ListingFormat", err)
		}
		for _, m := range listing.All() {
			if err := a.meetings.UpsertMeeting(ctx, m); err != nil {
				return ListMeetingsOutput{}, err
			}
		}
		a.log.Info("refreshed meeting listing", "meetings", listing.Len())
	}
	ms, err := a.meetings.ListMeetings(ctx, in.Year, in.Group)
	if err != nil {
		return ListMeetingsOutput{}, err
	}
	out := ListMeetingsOutput{Meetings: make([]MeetingRef, 0, len(ms))}
	for _, m := range ms {
		out.Meetings = append(out.Meetings, MeetingRef{MeetingKey: m.Key, AgendaURL: m.AgendaURL(a.cfg.AgendaFile)})
	}
	return out, nil
}

// FetchAgendaActivity downloads the report into the input tree, so later
// activities pass a path rather than the whole document through history.
func (a *Activities) FetchAgendaActivity(ctx context.Context, in FetchAgendaInput) (FetchAgendaOutput, error) {
	src := in.AgendaURL
	if src == "" {
		m, err := a.meetings.GetMeeting(ctx, in.MeetingKey)
		if err != nil {
			return FetchAgendaOutput{}, temporal.NewNonRetryableApplicationError("unknown meeting", "MeetingNotFound", err)
		}
		src = m.AgendaURL(a.cfg.AgendaFile)
		if src == "" {
			return FetchAgendaOutput{Missing: true}, nil
		}
	}
	raw, err := a.fetcher.Get(ctx, src)
	if err != nil {
		switch fetch.ClassifyError(err) {
		case fetch.ErrorNotFound:
			a.log.Info("agenda report not published", "meeting", in.MeetingKey, "url", src)
			return FetchAgendaOutput{SourceURL: src, Missing: true}, nil
		case fetch.ErrorPermanent:
			return FetchAgendaOutput{}, temporal.NewNonRetryableApplicationError("agenda fetch failed", "FetchPermanent", err)
		default:
			return FetchAgendaOutput{}, err
		}
	}
	path := filepath.Join(a.cfg.DataInRoot, util.SafeKey(in.MeetingKey), a.agendaFile())
	if err := util.WriteFileAtomic(path, raw); err != nil {
		return FetchAgendaOutput{}, err
	}
	return FetchAgendaOutput{Path: path, SourceURL: src, ContentMD5: util.MD5Hex(raw), Bytes: len(raw)}, nil
}

func (a *Activities) ParseAgendaActivity(ctx context.Context, in ParseAgendaInput) (ParseAgendaOutput, error) {
	res, hit, err := a.load(in.MeetingKey, in.Path)
	if err != nil {
		return ParseAgendaOutput{}, err
	}
	activity.RecordHeartbeat(ctx, res.Table.Len())
	return ParseAgendaOutput{
		Format:        string(res.Format),
		Documents:     res.Table.Len(),
		EmailApproval: res.Table.EmailApprovalCount(),
		Unmatched:     res.Unmatched,
		CacheHit:      hit,
	}, nil
}

func (a *Activities) StoreTDocsActivity(ctx context.Context, in StoreTDocsInput) (StoreTDocsOutput, error) {
	res, _, err := a.load(in.MeetingKey, in.Path)
	if err != nil {
		return StoreTDocsOutput{}, err
	}
	docs := res.Table.Documents()
	for i := range docs {
		docs[i].Meeting = in.MeetingKey
	}
	if err := a.tdocs.ReplaceMeetingTDocs(ctx, in.MeetingKey, in.RunID, docs); err != nil {
		return StoreTDocsOutput{}, err
	}
	return StoreTDocsOutput{Stored: len(docs)}, nil
}

func (a *Activities) WriteMeetingSummaryActivity(ctx context.Context, in WriteMeetingSummaryInput) (WriteMeetingSummaryOutput, error) {
	_ = ctx
	res, _, err := a.load(in.MeetingKey, in.Path)
	if err != nil {
		return WriteMeetingSummaryOutput{}, err
	}
	base := filepath.Join(a.cfg.DataOutRoot, util.SafeKey(in.MeetingKey), "runs", util.SafeKey(in.RunID))
	out := WriteMeetingSummaryOutput{
		SummaryPath: filepath.Join(base, "summary.json"),
		TDocsPath:   filepath.Join(base, "tdocs.jsonl"),
	}
	if err := util.WriteJSONAtomic(out.SummaryPath, models.SummaryOf(in.MeetingKey, res.Table, res.Unmatched)); err != nil {
		return WriteMeetingSummaryOutput{}, err
	}
	if err := util.WriteJSONLinesAtomic(out.TDocsPath, res.Table.Documents()); err != nil {
		return WriteMeetingSummaryOutput{}, err
	}
	return out, nil
}

// RecordRunActivity creates the run row on status "running" and updates it
// for any other status.
func (a *Activities) RecordRunActivity(ctx context.Context, in RecordRunInput) error {
	run := models.ParseRun{
		RunID:         in.RunID,
		MeetingKey:    in.MeetingKey,
		SourceURL:     in.SourceURL,
		ContentMD5:    in.ContentMD5,
		Status:        in.Status,
		Documents:     in.Documents,
		EmailApproval: in.EmailApproval,
		Unmatched:     in.Unmatched,
		FailReason:    in.FailReason,
	}
	if in.Status == models.RunStatusRunning {
		return a.runs.CreateRun(ctx, run)
	}
	return a.runs.FinishRun(ctx, run)
}

func (a *Activities) WriteYearSummaryActivity(ctx context.Context, in WriteYearSummaryInput) error {
	_ = ctx
	name := strconv.Itoa(in.Year)
	if in.Group != "" {
		name += "-" + util.SafeKey(in.Group)
	}
	return util.WriteJSONAtomic(filepath.Join(a.cfg.DataOutRoot, "years", name+".json"), in.Summary)
}

func (a *Activities) load(meetingKey, path string) (tdocs.Result, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tdocs.Result{}, false, fmt.Errorf("read agenda report: %w", err)
	}
	return a.cache.GetOrParse(raw, meetingKey, a.parse)
}

func (a *Activities) agendaFile() string {
	if a.cfg.AgendaFile == "" {
		return "TdocsByAgenda.htm"
	}
	return filepath.Base(a.cfg.AgendaFile)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
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
	"tdocflow/internal/workflows"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

const maxUploadBytes = 64 << 20

type MeetingStore interface {
	ListMeetings(ctx context.Context, year int, group string) ([]meetings.Meeting, error)
	GetMeeting(ctx context.Context, key string) (meetings.Meeting, error)
}

type TDocStore interface {
	ListByMeeting(ctx context.Context, meetingKey string) ([]tdocs.Document, error)
	GetTDoc(ctx context.Context, meetingKey, id string) (tdocs.Document, error)
}

type RunStore interface {
	LatestRun(ctx context.Context, meetingKey string) (models.ParseRun, error)
}

// WorkflowClient is the part of the Temporal client the API uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Fetcher interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// Deps carries the collaborators of a Server. A nil Temporal client disables
// the workflow routes; a nil TDocs store makes every table read live.
type Deps struct {
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Meetings MeetingStore
	TDocs    TDocStore
	Runs     RunStore
	Temporal WorkflowClient
	Fetcher  Fetcher
	Cache    *cache.Store
}

type Server struct {
	cfg      config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	meetings MeetingStore
	tdocs    TDocStore
	runs     RunStore
	temporal WorkflowClient
	fetcher  Fetcher
	cache    *cache.Store
	parser   *tdocs.Parser
	parse    cache.Parser
}

// NewServer wires the Postgres repositories behind the API.
func NewServer(cfg config.Config, db *storage.DB, tc tclient.Client, log *logger.Logger, m *metrics.Metrics) *Server {
	d := Deps{
		Log:      log,
		Metrics:  m,
		Meetings: storage.NewMeetingRepo(db),
		TDocs:    storage.NewTDocRepo(db),
		Runs:     storage.NewRunRepo(db),
	}
	if tc != nil {
		d.Temporal = tc
	}
	return New(cfg, d)
}

func New(cfg config.Config, d Deps) *Server {
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
	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  d.Metrics,
		meetings: d.Meetings,
		tdocs:    d.TDocs,
		runs:     d.Runs,
		temporal: d.Temporal,
		fetcher:  d.Fetcher,
		cache:    d.Cache,
		parser:   parser,
		parse:    cache.ObservedParse(parser, d.Metrics),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("GET /meetings", s.handleMeetings)
	mux.HandleFunc("GET /meetings/{key}/tdocs", s.handleTDocs)
	mux.HandleFunc("GET /meetings/{key}/tdocs/{id}", s.handleTDoc)
	mux.HandleFunc("GET /meetings/{key}/vendors/{vendor}", s.handleVendorDocs)
	mux.HandleFunc("GET /meetings/{key}/summary", s.handleSummary)
	mux.HandleFunc("POST /meetings/{key}/parse", s.handleStartMeeting)
	mux.HandleFunc("GET /meetings/{key}/status", s.handleMeetingStatus)
	mux.HandleFunc("POST /years/{year}/parse", s.handleStartYear)
	mux.HandleFunc("GET /years/{year}/progress", s.handleYearProgress)
	return withCORS(s.withRequestLog(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

// handleParse parses a report posted as the request body. Nothing is stored.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	if len(raw) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("empty report body"))
		return
	}
	if len(raw) > maxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("report too large"))
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("meeting"))
	if key == "" {
		key = "adhoc"
	}
	res, hit, err := s.cache.GetOrParse(raw, key, s.parse)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meeting":             key,
		"format":              res.Format,
		"cache_hit":           hit,
		"summary":             models.SummaryOf(key, res.Table, res.Unmatched),
		"documents":           res.Table.Documents(),
		"unmatched_cosigners": nonNil(res.Unmatched),
	})
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	if s.meetings == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("meeting store unavailable"))
		return
	}
	q := r.URL.Query()
	year := 0
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid year %q", v))
			return
		}
		year = n
	}
	ms, err := s.meetings.ListMeetings(r.Context(), year, strings.TrimSpace(q.Get("group")))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, map[string]any{
			"meeting":       m.Key,
			"group":         m.Group,
			"number":        m.Number,
			"title":         m.Title,
			"location":      m.Location,
			"start":         m.Start,
			"end":           m.End,
			"url":           m.URL,
			"documents_url": m.DocumentsURL,
			"agenda_url":    m.AgendaURL(s.cfg.AgendaFile),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTDocs(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	t, _, err := s.loadTable(r.Context(), key, isLive(r))
	if err != nil {
		s.writeLoadErr(w, err)
		return
	}
	q := r.URL.Query()
	docs := filterDocs(t.Documents(), q.Get("agenda_item"), q.Get("vendor"), q.Get("result"))
	writeJSON(w, http.StatusOK, map[string]any{
		"meeting":        key,
		"vendor_columns": t.VendorColumns(),
		"count":          len(docs),
		"documents":      docs,
	})
}

func (s *Server) handleTDoc(w http.ResponseWriter, r *http.Request) {
	key, id := r.PathValue("key"), r.PathValue("id")
	if !isLive(r) && s.tdocs != nil {
		doc, err := s.tdocs.GetTDoc(r.Context(), key, id)
		if err == nil {
			writeJSON(w, http.StatusOK, doc)
			return
		}
		if !errors.Is(err, util.ErrTDocNotFound) {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	t, _, err := s.loadTable(r.Context(), key, true)
	if err != nil {
		s.writeLoadErr(w, err)
		return
	}
	doc, ok := t.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, fmt.Errorf("%w: %s", util.ErrTDocNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleVendorDocs(w http.ResponseWriter, r *http.Request) {
	key, vendor := r.PathValue("key"), r.PathValue("vendor")
	t, _, err := s.loadTable(r.Context(), key, isLive(r))
	if err != nil {
		s.writeLoadErr(w, err)
		return
	}
	known := false
	for _, v := range t.VendorColumns() {
		if strings.EqualFold(v, vendor) {
			vendor, known = v, true
			break
		}
	}
	if !known {
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown vendor %q", vendor))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meeting":   key,
		"vendor":    vendor,
		"documents": t.DocumentsFrom(vendor),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	t, unmatched, err := s.loadTable(r.Context(), key, isLive(r))
	if err != nil {
		s.writeLoadErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SummaryOf(key, t, unmatched))
}

type startMeetingRequest struct {
	AgendaURL string `json:"agenda_url"`
}

func (s *Server) handleStartMeeting(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("workflow service unavailable"))
		return
	}
	key := r.PathValue("key")
	var req startMeetingRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.MeetingWorkflowID(key),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.MeetingParseWorkflow, workflows.MeetingParseInput{
		MeetingKey: key,
		AgendaURL:  strings.TrimSpace(req.AgendaURL),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	s.cache.Forget(key)
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleMeetingStatus(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if s.temporal != nil {
		resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.MeetingWorkflowID(key), "", workflows.QueryGetMeetingStatus)
		if err == nil {
			var st workflows.MeetingStatus
			if err := resp.Get(&st); err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	// Fall back to the last recorded run when no workflow answers the query.
	if s.runs == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no parse run for %s", key))
		return
	}
	run, err := s.runs.LatestRun(r.Context(), key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows.MeetingStatus{
		MeetingKey:    run.MeetingKey,
		RunID:         run.RunID,
		CurrentStep:   "done",
		Status:        run.Status,
		FailReason:    run.FailReason,
		Documents:     run.Documents,
		EmailApproval: run.EmailApproval,
		Unmatched:     run.Unmatched,
		Steps:         map[string]string{},
	})
}

type startYearRequest struct {
	Group                 string `json:"group"`
	RefreshListing        bool   `json:"refresh_listing"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

func (s *Server) handleStartYear(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("workflow service unavailable"))
		return
	}
	year, err := pathYear(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req startYearRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	if g := strings.TrimSpace(r.URL.Query().Get("group")); g != "" {
		req.Group = g
	}
	if req.MaxConcurrentChildren <= 0 {
		req.MaxConcurrentChildren = s.cfg.BatchMaxChildren
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.YearWorkflowID(year, req.Group),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.YearParseWorkflow, workflows.YearParseInput{
		Year:                  year,
		Group:                 req.Group,
		RefreshListing:        req.RefreshListing,
		MaxConcurrentChildren: req.MaxConcurrentChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleYearProgress(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("workflow service unavailable"))
		return
	}
	year, err := pathYear(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	id := workflows.YearWorkflowID(year, strings.TrimSpace(r.URL.Query().Get("group")))
	resp, err := s.temporal.QueryWorkflow(r.Context(), id, "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no year workflow %s: %w", id, err))
		return
	}
	var prog workflows.YearParseProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

var errReportMissing = errors.New("agenda report not published")

// loadTable serves a meeting's table from the stored rows, or fetches and
// parses the report when live is set or nothing is stored yet.
func (s *Server) loadTable(ctx context.Context, key string, live bool) (*tdocs.Table, []string, error) {
	if !live && s.tdocs != nil {
		docs, err := s.tdocs.ListByMeeting(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if len(docs) > 0 {
			t := tdocs.NewTable(docs)
			t.SetVendorColumns(s.parser.Vendors())
			var unmatched []string
			if s.runs != nil {
				if run, err := s.runs.LatestRun(ctx, key); err == nil {
					unmatched = run.Unmatched
				}
			}
			return t, unmatched, nil
		}
	}
	if s.meetings == nil {
		return nil, nil, fmt.Errorf("%w: %s", util.ErrMeetingNotFound, key)
	}
	m, err := s.meetings.GetMeeting(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	src := m.AgendaURL(s.cfg.AgendaFile)
	if src == "" {
		return nil, nil, errReportMissing
	}
	raw, err := s.fetcher.Get(ctx, src)
	if err != nil {
		if fetch.ClassifyError(err) == fetch.ErrorNotFound {
			return nil, nil, errReportMissing
		}
		return nil, nil, err
	}
	res, _, err := s.cache.GetOrParse(raw, key, s.parse)
	if err != nil {
		return nil, nil, err
	}
	return res.Table, res.Unmatched, nil
}

func (s *Server) writeLoadErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, util.ErrMeetingNotFound), errors.Is(err, errReportMissing):
		writeErr(w, http.StatusNotFound, err)
	case errors.Is(err, util.ErrFetchStatus):
		writeErr(w, http.StatusBadGateway, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func filterDocs(docs []tdocs.Document, agendaItem, vendor, result string) []tdocs.Document {
	agendaItem, vendor, result = strings.TrimSpace(agendaItem), strings.TrimSpace(vendor), strings.TrimSpace(result)
	if agendaItem == "" && vendor == "" && result == "" {
		return docs
	}
	out := make([]tdocs.Document, 0, len(docs))
	for _, d := range docs {
		if agendaItem != "" && d.AgendaItem != agendaItem && d.AgendaTag != tdocs.AgendaTag(agendaItem) {
			continue
		}
		if vendor != "" && !d.HasVendor(vendor) {
			continue
		}
		if result != "" && !strings.EqualFold(d.Result, result) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func isLive(r *http.Request) bool {
	return r.URL.Query().Get("source") == "live"
}

func pathYear(r *http.Request) (int, error) {
	v := r.PathValue("year")
	n, err := strconv.Atoi(v)
	if err != nil || n < 1990 || n > 2100 {
		return 0, fmt.Errorf("invalid year %q", v)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "TF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{
			Code:    "TF-API-5020",
			Message: "Upstream report server unavailable. Retry shortly.",
		}
	case status == http.StatusServiceUnavailable:
		return apiError{
			Code:    "TF-API-5030",
			Message: "A backing service is not configured or unavailable.",
		}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "TF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "TF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "TF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "TF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "TF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "TF-API-4009"
		msg = "A parse run for this target is already in progress."
	case status == http.StatusRequestEntityTooLarge:
		code = "TF-API-4013"
		msg = "Report body exceeds the upload limit."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "invalid year"):
			msg = "Year must be a four digit number."
		case strings.Contains(raw, "empty report body"):
			msg = "No report was provided in the request body."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "meeting not found"):
			msg = "Meeting is not in the meeting listing."
		case strings.Contains(raw, "tdoc not found"):
			msg = "Document is not in this meeting's report."
		case strings.Contains(raw, "unknown vendor"):
			msg = "Vendor is not a known vendor column."
		case strings.Contains(raw, "not published"):
			msg = "Meeting has no agenda report yet."
		}
	}

	return apiError{Code: code, Message: msg}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with an ID and records route metrics.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(route, strconv.Itoa(rec.status), elapsed)
		s.log.Debug("http request", "request_id", id, "route", route, "path", r.URL.Path, "status", rec.status, "elapsed", elapsed)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

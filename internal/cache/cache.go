// Package cache memoises parsed agenda reports by content hash, in memory and
// on disk.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tdocflow/internal/logger"
	"tdocflow/internal/metrics"
	"tdocflow/internal/tdocs"
	"tdocflow/internal/util"
)

// SchemaVersion is bumped whenever Document or Bundle change shape; files
// written under another version are discarded. Files written under other
// parser settings are discarded the same way.
const SchemaVersion = 4

// Bundle is the on-disk form of a parsed report.
type Bundle struct {
	SchemaVersion int              `json:"schema_version"`
	Meeting       string           `json:"meeting"`
	ContentMD5    string           `json:"content_md5"`
	Settings      string           `json:"parser_settings"`
	Format        tdocs.Format     `json:"format"`
	Documents     []tdocs.Document `json:"documents"`
	VendorColumns []string         `json:"vendor_columns"`
	Unmatched     []string         `json:"unmatched"`
}

// Parser produces a result from raw report bytes. Settings fingerprints the
// options shaping that result; it is part of the cache key.
type Parser interface {
	Parse(raw []byte) tdocs.Result
	Settings() string
}

type observedParser struct {
	p *tdocs.Parser
	m *metrics.Metrics
}

// ObservedParse wraps p so every actual parse is timed and counted.
func ObservedParse(p *tdocs.Parser, m *metrics.Metrics) Parser {
	return observedParser{p: p, m: m}
}

func (o observedParser) Settings() string { return o.p.Settings() }

func (o observedParser) Parse(raw []byte) tdocs.Result {
	start := time.Now()
	res := o.p.Parse(raw)
	outcome := "parsed"
	if res.Table.Len() == 0 {
		outcome = "empty"
	}
	o.m.ObserveParse(string(res.Format), outcome, res.Table.Len(), len(res.Unmatched), time.Since(start))
	return res
}

// Store is safe for concurrent use.
type Store struct {
	dir     string
	log     *logger.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	mem map[string]tdocs.Result
}

// NewStore keeps cache files under dir. An empty dir disables the disk layer.
func NewStore(dir string, log *logger.Logger, m *metrics.Metrics) *Store {
	return &Store{dir: dir, log: logger.OrNop(log), metrics: m, mem: map[string]tdocs.Result{}}
}

// Path is where the bundle for raw under meetingKey, parsed with settings,
// lives.
func (s *Store) Path(meetingKey string, raw []byte, settings string) string {
	return filepath.Join(s.dir, util.SafeKey(meetingKey), entryName(util.MD5Hex(raw), settings)+".json")
}

func entryName(sum, settings string) string {
	return sum + "-" + util.MD5Hex([]byte(settings))[:8]
}

// GetOrParse returns the cached result for raw, or parses and stores it. hit
// reports whether parse was skipped. A failure to write the cache file is
// logged and does not fail the call.
func (s *Store) GetOrParse(raw []byte, meetingKey string, parse Parser) (res tdocs.Result, hit bool, err error) {
	if parse == nil {
		return tdocs.Result{}, false, errors.New("cache: nil parser")
	}
	sum := util.MD5Hex(raw)
	settings := parse.Settings()
	key := util.SafeKey(meetingKey) + "/" + entryName(sum, settings)

	s.mu.Lock()
	r, ok := s.mem[key]
	s.mu.Unlock()
	if ok {
		s.metrics.CacheLookup("memory")
		return r, true, nil
	}

	if s.dir != "" {
		path := s.Path(meetingKey, raw, settings)
		r, err := s.load(path, settings)
		switch {
		case err == nil:
			s.metrics.CacheLookup("disk")
			s.remember(key, r)
			return r, true, nil
		case errors.Is(err, util.ErrCacheMiss):
			s.metrics.CacheLookup("miss")
		default:
			s.metrics.CacheLookup("stale")
			s.log.Warn("discarding cached agenda report", "meeting", meetingKey, "path", path, "error", err)
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.log.Warn("remove stale cache file", "path", path, "error", rmErr)
			}
		}
	} else {
		s.metrics.CacheLookup("miss")
	}

	r = parse.Parse(raw)
	s.remember(key, r)
	if s.dir != "" {
		s.store(s.Path(meetingKey, raw, settings), meetingKey, sum, settings, r)
	}
	return r, false, nil
}

// Forget drops every memory entry of a meeting. Disk files are left in place.
func (s *Store) Forget(meetingKey string) {
	prefix := util.SafeKey(meetingKey) + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.mem {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.mem, k)
		}
	}
}

func (s *Store) remember(key string, r tdocs.Result) {
	s.mu.Lock()
	s.mem[key] = r
	s.mu.Unlock()
}

func (s *Store) load(path, settings string) (tdocs.Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tdocs.Result{}, util.ErrCacheMiss
		}
		return tdocs.Result{}, fmt.Errorf("read cache file: %w", err)
	}
	var bundle Bundle
	if err := json.Unmarshal(b, &bundle); err != nil {
		return tdocs.Result{}, fmt.Errorf("decode cache file: %w", err)
	}
	if bundle.SchemaVersion != SchemaVersion {
		return tdocs.Result{}, fmt.Errorf("%w: have %d, want %d", util.ErrSchemaMismatch, bundle.SchemaVersion, SchemaVersion)
	}
	if bundle.Settings != settings {
		return tdocs.Result{}, fmt.Errorf("%w: parser settings %q, want %q", util.ErrSchemaMismatch, bundle.Settings, settings)
	}
	t := tdocs.NewTable(bundle.Documents)
	t.SetVendorColumns(bundle.VendorColumns)
	unmatched := bundle.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	return tdocs.Result{Format: bundle.Format, Table: t, Unmatched: unmatched}, nil
}

func (s *Store) store(path, meetingKey, sum, settings string, r tdocs.Result) {
	bundle := Bundle{
		SchemaVersion: SchemaVersion,
		Meeting:       meetingKey,
		ContentMD5:    sum,
		Settings:      settings,
		Format:        r.Format,
		Documents:     r.Table.Documents(),
		VendorColumns: r.Table.VendorColumns(),
		Unmatched:     r.Unmatched,
	}
	created, err := util.WriteJSONOnce(path, bundle)
	if err != nil {
		s.log.Warn("write agenda cache", "meeting", meetingKey, "path", path, "error", err)
		return
	}
	if created {
		s.log.Debug("cached agenda report", "meeting", meetingKey, "documents", len(bundle.Documents), "path", path)
	}
}

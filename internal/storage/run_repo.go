package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tdocflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) CreateRun(ctx context.Context, run models.ParseRun) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO parse_runs (run_id, meeting_key, source_url, status)
VALUES ($1::uuid, $2, NULLIF($3,''), $4)`, run.RunID, run.MeetingKey, run.SourceURL, run.Status)
	if err != nil {
		return fmt.Errorf("create parse run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (r *RunRepo) FinishRun(ctx context.Context, run models.ParseRun) error {
	unmatched := run.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	unmatchedJSON, _ := json.Marshal(unmatched)
	_, err := r.db.Pool.Exec(ctx, `
UPDATE parse_runs
SET status=$2, content_md5=NULLIF($3,''), documents=$4, email_approval=$5, unmatched=$6::jsonb,
    fail_reason=NULLIF($7,''), updated_at=NOW()
WHERE run_id=$1::uuid`,
		run.RunID, run.Status, run.ContentMD5, run.Documents, run.EmailApproval, string(unmatchedJSON), run.FailReason)
	if err != nil {
		return fmt.Errorf("finish parse run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run of a meeting.
func (r *RunRepo) LatestRun(ctx context.Context, meetingKey string) (models.ParseRun, error) {
	var run models.ParseRun
	var unmatched []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT run_id::text, meeting_key, COALESCE(source_url,''), COALESCE(content_md5,''), status, documents,
       email_approval, unmatched, COALESCE(fail_reason,''), created_at, updated_at
FROM parse_runs
WHERE meeting_key=$1
ORDER BY created_at DESC
LIMIT 1`, meetingKey).Scan(&run.RunID, &run.MeetingKey, &run.SourceURL, &run.ContentMD5, &run.Status, &run.Documents,
		&run.EmailApproval, &unmatched, &run.FailReason, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ParseRun{}, fmt.Errorf("no parse run for %s: %w", meetingKey, err)
		}
		return models.ParseRun{}, fmt.Errorf("get latest parse run: %w", err)
	}
	if err := json.Unmarshal(unmatched, &run.Unmatched); err != nil {
		return models.ParseRun{}, fmt.Errorf("decode unmatched cosigners: %w", err)
	}
	return run, nil
}

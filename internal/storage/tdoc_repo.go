package storage

import (
	"context"
	"errors"
	"fmt"

	"tdocflow/internal/tdocs"
	"tdocflow/internal/util"

	"github.com/jackc/pgx/v5"
)

type TDocRepo struct {
	db *DB
}

func NewTDocRepo(db *DB) *TDocRepo {
	return &TDocRepo{db: db}
}

const tdocColumns = `tdoc_id, title, source, doc_type, doc_for, agenda_item, agenda_tag, result, comment_text,
       revision_of, revised_to, merge_of, merged_to, original_documents, final_documents,
       spec_number, cr_number, vendors, source_summary, extra`

// ReplaceMeetingTDocs swaps the stored documents of a meeting for docs in one
// transaction, so readers never see a half-written meeting.
func (r *TDocRepo) ReplaceMeetingTDocs(ctx context.Context, meetingKey, runID string, docs []tdocs.Document) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace tdocs: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM tdocs WHERE meeting_key=$1`, meetingKey); err != nil {
		return fmt.Errorf("delete tdocs of %s: %w", meetingKey, err)
	}

	batch := &pgx.Batch{}
	for i, d := range docs {
		extra := d.Extra
		if extra == nil {
			extra = map[string]string{}
		}
		batch.Queue(`
INSERT INTO tdocs (meeting_key, run_id, position, tdoc_id, title, source, doc_type, doc_for, agenda_item, agenda_tag,
                   result, comment_text, revision_of, revised_to, merge_of, merged_to, original_documents,
                   final_documents, spec_number, cr_number, vendors, source_summary, extra)
VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
			meetingKey, runID, i, d.ID, d.Title, d.Source, d.Type, d.DocFor, d.AgendaItem, d.AgendaTag,
			d.Result, d.Comment, d.RevisionOf, d.RevisedTo, nonNil(d.MergeOf), nonNil(d.MergedTo), nonNil(d.OriginalDocuments),
			nonNil(d.FinalDocuments), d.SpecNumber, d.CRNumber, nonNil(d.Vendors), d.SourceSummary, extra,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, d := range docs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert tdoc %s: %w", d.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close tdoc batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tdocs tx: %w", err)
	}
	return nil
}

func (r *TDocRepo) ListByMeeting(ctx context.Context, meetingKey string) ([]tdocs.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+tdocColumns+`
FROM tdocs
WHERE meeting_key=$1
ORDER BY position ASC`, meetingKey)
	if err != nil {
		return nil, fmt.Errorf("list tdocs: %w", err)
	}
	defer rows.Close()

	out := make([]tdocs.Document, 0, 256)
	for rows.Next() {
		d, err := scanTDoc(rows, meetingKey)
		if err != nil {
			return nil, fmt.Errorf("scan tdoc: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tdocs: %w", err)
	}
	return out, nil
}

func (r *TDocRepo) GetTDoc(ctx context.Context, meetingKey, id string) (tdocs.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT `+tdocColumns+`
FROM tdocs
WHERE meeting_key=$1 AND tdoc_id=$2`, meetingKey, id)
	d, err := scanTDoc(row, meetingKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tdocs.Document{}, fmt.Errorf("tdoc %s: %w", id, util.ErrTDocNotFound)
		}
		return tdocs.Document{}, fmt.Errorf("get tdoc: %w", err)
	}
	return d, nil
}

func scanTDoc(row pgx.Row, meetingKey string) (tdocs.Document, error) {
	var d tdocs.Document
	err := row.Scan(&d.ID, &d.Title, &d.Source, &d.Type, &d.DocFor, &d.AgendaItem, &d.AgendaTag, &d.Result, &d.Comment,
		&d.RevisionOf, &d.RevisedTo, &d.MergeOf, &d.MergedTo, &d.OriginalDocuments, &d.FinalDocuments,
		&d.SpecNumber, &d.CRNumber, &d.Vendors, &d.SourceSummary, &d.Extra)
	if err != nil {
		return tdocs.Document{}, err
	}
	d.Meeting = meetingKey
	if len(d.Extra) == 0 {
		d.Extra = nil
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

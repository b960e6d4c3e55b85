package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tdocflow/internal/meetings"
	"tdocflow/internal/util"

	"github.com/jackc/pgx/v5"
)

type MeetingRepo struct {
	db *DB
}

func NewMeetingRepo(db *DB) *MeetingRepo {
	return &MeetingRepo{db: db}
}

func (r *MeetingRepo) UpsertMeeting(ctx context.Context, m meetings.Meeting) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO meetings (meeting_key, grp, number, title, location, start_date, end_date, url, documents_url)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, NULLIF($8,''), NULLIF($9,''))
ON CONFLICT (meeting_key)
DO UPDATE SET
  grp = EXCLUDED.grp,
  number = EXCLUDED.number,
  title = COALESCE(EXCLUDED.title, meetings.title),
  location = COALESCE(EXCLUDED.location, meetings.location),
  start_date = EXCLUDED.start_date,
  end_date = COALESCE(EXCLUDED.end_date, meetings.end_date),
  url = COALESCE(EXCLUDED.url, meetings.url),
  documents_url = COALESCE(EXCLUDED.documents_url, meetings.documents_url),
  updated_at = NOW()`,
		m.Key, m.Group, m.Number, m.Title, m.Location, m.Start, nullTime(m.End), m.URL, m.DocumentsURL,
	)
	if err != nil {
		return fmt.Errorf("upsert meeting %s: %w", m.Key, err)
	}
	return nil
}

// ListMeetings returns meetings starting in year, optionally restricted to
// one group, ordered by start date. A zero year lists every year.
func (r *MeetingRepo) ListMeetings(ctx context.Context, year int, group string) ([]meetings.Meeting, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT meeting_key, grp, number, COALESCE(title,''), COALESCE(location,''), start_date, end_date,
       COALESCE(url,''), COALESCE(documents_url,'')
FROM meetings
WHERE ($1 = 0 OR EXTRACT(YEAR FROM start_date) = $1)
  AND ($2 = '' OR UPPER(grp) = UPPER($2))
ORDER BY start_date ASC, meeting_key ASC`, year, group)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	out := make([]meetings.Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meetings: %w", err)
	}
	return out, nil
}

func (r *MeetingRepo) GetMeeting(ctx context.Context, key string) (meetings.Meeting, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT meeting_key, grp, number, COALESCE(title,''), COALESCE(location,''), start_date, end_date,
       COALESCE(url,''), COALESCE(documents_url,'')
FROM meetings
WHERE meeting_key=$1`, key)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return meetings.Meeting{}, fmt.Errorf("meeting %s: %w", key, util.ErrMeetingNotFound)
		}
		return meetings.Meeting{}, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

func scanMeeting(row pgx.Row) (meetings.Meeting, error) {
	var m meetings.Meeting
	var end *time.Time
	if err := row.Scan(&m.Key, &m.Group, &m.Number, &m.Title, &m.Location, &m.Start, &end, &m.URL, &m.DocumentsURL); err != nil {
		return meetings.Meeting{}, err
	}
	if end != nil {
		m.End = *end
	}
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

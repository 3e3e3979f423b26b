package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/model"
)

var streamColumns = []string{
	"video_id", "title", "view_count", "streamed_date",
	"stream_timestamp", "duration", "summary_md", "timestamp_md",
}

type streamRow struct {
	VideoID         string         `db:"video_id"`
	Title           string         `db:"title"`
	ViewCount       string         `db:"view_count"`
	StreamedDate    string         `db:"streamed_date"`
	StreamTimestamp time.Time      `db:"stream_timestamp"`
	Duration        string         `db:"duration"`
	SummaryMD       sql.NullString `db:"summary_md"`
	TimestampMD     sql.NullString `db:"timestamp_md"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r streamRow) stream() model.Stream {
	return model.Stream{
		ID:             r.VideoID,
		Title:          r.Title,
		ViewCount:      r.ViewCount,
		RawPublishedAt: r.StreamedDate,
		Duration:       r.Duration,
		Summary:        r.SummaryMD.String,
		TimestampHint:  r.TimestampMD.String,
		PublishedAt:    r.StreamTimestamp,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type StreamRepository struct {
	db     *sqlx.DB
	sq     sq.StatementBuilderType
	now    func() time.Time
	logger *slog.Logger
}

func NewStreamRepository(db *sqlx.DB, logger *slog.Logger) *StreamRepository {
	return &StreamRepository{
		db:     db,
		sq:     placeholders(db),
		now:    time.Now,
		logger: logger,
	}
}

// ExistingIDs returns the subset of ids that is already stored.
func (r *StreamRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	query, args, err := r.sq.Select("video_id").From("streams").Where(sq.Eq{"video_id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %w", err)
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching stream ids: %w", err)
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}

	return existing, nil
}

// BulkInsert stores the streams in one transaction. Streams that cannot be
// stored are reported per item: a publish time that does not parse, or an
// id that was seen earlier in the batch or is already stored. Any other
// database error aborts the whole batch.
func (r *StreamRepository) BulkInsert(ctx context.Context, streams []model.Stream) (model.BatchResult, error) {
	result := model.BatchResult{Failures: []model.Failure{}}
	now := r.now()

	var (
		valid []model.Stream
		at    = map[string]time.Time{}
	)
	for _, s := range streams {
		ts, ok := s.Timestamp(now)
		if !ok {
			result.Failures = append(result.Failures, model.Failure{ID: s.ID, Reason: model.InvalidPublishedAt(s.RawPublishedAt)})
			continue
		}
		if _, dup := at[s.ID]; dup {
			result.Failures = append(result.Failures, model.Failure{ID: s.ID, Reason: model.DuplicateEntry()})
			continue
		}
		at[s.ID] = ts.UTC()
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return result, nil
	}

	insert := r.sq.Insert("streams").Columns(streamColumns...)
	for _, s := range valid {
		insert = insert.Values(s.ID, s.Title, s.ViewCount, s.RawPublishedAt, at[s.ID], s.Duration, nullable(s.Summary), nullable(s.TimestampHint))
	}
	query, args, err := insert.Suffix("ON CONFLICT (video_id) DO NOTHING RETURNING video_id").ToSql()
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("error constructing sql: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var inserted []string
	if err := tx.SelectContext(ctx, &inserted, query, args...); err != nil {
		return model.BatchResult{}, fmt.Errorf("error inserting streams: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.BatchResult{}, fmt.Errorf("error committing streams: %w", err)
	}

	stored := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		stored[id] = struct{}{}
	}
	for _, s := range valid {
		if _, ok := stored[s.ID]; !ok {
			result.Failures = append(result.Failures, model.Failure{ID: s.ID, Reason: model.DuplicateEntry()})
		}
	}
	result.Inserted = len(inserted)

	r.logger.InfoContext(ctx, "streams stored",
		slog.Int("inserted", result.Inserted),
		slog.Int("failed", len(result.Failures)),
	)

	return result, nil
}

// List returns the most recent streams first.
func (r *StreamRepository) List(ctx context.Context, limit int) ([]model.Stream, error) {
	q := r.sq.Select("*").From("streams").OrderBy("stream_timestamp DESC", "video_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %w", err)
	}

	var rows []streamRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error listing streams: %w", err)
	}

	streams := make([]model.Stream, 0, len(rows))
	for _, row := range rows {
		streams = append(streams, row.stream())
	}

	return streams, nil
}

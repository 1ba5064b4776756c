package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

const articlesTable = "articles"

const schemaDDL = `CREATE TABLE IF NOT EXISTS articles (
    id           BIGSERIAL PRIMARY KEY,
    reference    TEXT        NOT NULL,
    feed_id      BIGINT      NOT NULL,
    author       TEXT        NOT NULL DEFAULT '',
    title        TEXT        NOT NULL,
    published    TIMESTAMPTZ NOT NULL,
    updated      TIMESTAMPTZ NOT NULL,
    url          TEXT        NOT NULL,
    summary      TEXT        NOT NULL,
    tags         TEXT        NOT NULL DEFAULT '',
    search_query TEXT        NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS articles_reference_idx ON articles (reference);`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresRepository persists enriched articles into Postgres.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	retry   retryPolicy
	logger  *slog.Logger
}

var _ ports.ArticleRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB, log *slog.Logger) *PostgresRepository {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		retry:   defaultRetryPolicy,
		logger:  log,
	}
}

// EnsureSchema creates the articles table and its reference index.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetUpdatedTimeIfExists returns the stored updated time for reference.
// The bool is false when no row exists. More than one row yields
// domain.ErrIntegrityViolation.
func (r *PostgresRepository) GetUpdatedTimeIfExists(ctx context.Context, reference string) (time.Time, bool, error) {
	return r.updatedTimeIfExists(ctx, r.db, reference)
}

// UpsertArticle inserts a new article, updates an older one in place or
// leaves a same-age or newer one untouched. Deadlocks roll the transaction
// back and retry; every other failure surfaces as *domain.PersistenceError.
func (r *PostgresRepository) UpsertArticle(ctx context.Context, record domain.ArticleRecord) (domain.UpsertOutcome, error) {
	var outcome domain.UpsertOutcome

	attempts, err := r.retry.run(ctx, func(attempt int) error {
		var txErr error
		outcome, txErr = r.upsertTx(ctx, record)
		if txErr != nil && isDeadlock(txErr) {
			r.logger.Warn("deadlock during article upsert",
				"reference", record.Reference,
				"feed_id", record.FeedID,
				"attempt", attempt,
			)
		}
		return txErr
	})
	if err != nil {
		return "", &domain.PersistenceError{Reference: record.Reference, Attempts: attempts, Err: err}
	}

	return outcome, nil
}

func (r *PostgresRepository) upsertTx(ctx context.Context, record domain.ArticleRecord) (outcome domain.UpsertOutcome, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored, exists, err := r.updatedTimeIfExists(ctx, tx, record.Reference)
	if err != nil {
		return "", err
	}

	switch {
	case !exists:
		id, insErr := r.insert(ctx, tx, record)
		if insErr != nil {
			return "", insErr
		}
		r.logger.Debug("article inserted", "reference", record.Reference, "id", id)
		outcome = domain.OutcomeInserted
	case stored.Before(record.UpdatedAt):
		if err = r.update(ctx, tx, record); err != nil {
			return "", err
		}
		outcome = domain.OutcomeUpdated
	default:
		outcome = domain.OutcomeUnchanged
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return outcome, nil
}

func (r *PostgresRepository) updatedTimeIfExists(ctx context.Context, q queryer, reference string) (time.Time, bool, error) {
	query, args, err := r.builder.
		Select("updated").
		From(articlesTable).
		Where(sq.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build lookup: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query updated: %w", err)
	}
	defer rows.Close()

	var (
		updated time.Time
		count   int
	)
	for rows.Next() {
		count++
		if count > 1 {
			return time.Time{}, false, fmt.Errorf("%w: reference %s matches more than one row", domain.ErrIntegrityViolation, reference)
		}
		if err := rows.Scan(&updated); err != nil {
			return time.Time{}, false, fmt.Errorf("scan updated: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, false, fmt.Errorf("rows iteration: %w", err)
	}

	return updated, count == 1, nil
}

func (r *PostgresRepository) insert(ctx context.Context, tx *sql.Tx, record domain.ArticleRecord) (int64, error) {
	query, args, err := r.builder.
		Insert(articlesTable).
		Columns("reference", "feed_id", "author", "title", "published", "updated", "url", "summary", "tags", "search_query").
		Values(
			record.Reference,
			record.FeedID,
			record.Author,
			record.Title,
			record.PublishedAt,
			record.UpdatedAt,
			record.URL,
			record.Summary,
			record.JoinedTags(),
			record.SearchQuery,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) update(ctx context.Context, tx *sql.Tx, record domain.ArticleRecord) error {
	query, args, err := r.builder.
		Update(articlesTable).
		Set("feed_id", record.FeedID).
		Set("author", record.Author).
		Set("title", record.Title).
		Set("published", record.PublishedAt).
		Set("updated", record.UpdatedAt).
		Set("url", record.URL).
		Set("summary", record.Summary).
		Set("tags", record.JoinedTags()).
		Set("search_query", record.SearchQuery).
		Where(sq.Eq{"reference": record.Reference}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 1 {
		return fmt.Errorf("%w: update touched %d rows for %s", domain.ErrIntegrityViolation, n, record.Reference)
	}
	return nil
}


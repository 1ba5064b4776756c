package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.FeedSource
	Fetcher     ports.Fetcher
	Parser      ports.FeedParser
	Debouncer   ports.Debouncer
	Summarizer  ports.Summarizer
	Embedder    ports.Embedder
	Repository  ports.ArticleRepository
	VectorStore ports.VectorStore
	// Pool runs entries concurrently. Nil processes them one by one.
	Pool   *ants.Pool
	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline implements the feed-ingestion workflow: parse, filter, debounce,
// enrich and persist into both stores.
type Pipeline struct {
	source      ports.FeedSource
	fetcher     ports.Fetcher
	parser      ports.FeedParser
	debouncer   ports.Debouncer
	summarizer  ports.Summarizer
	embedder    ports.Embedder
	repository  ports.ArticleRepository
	vectorStore ports.VectorStore
	pool        *ants.Pool
	logger      *slog.Logger
	now         func() time.Time

	// inflight holds references currently being processed by any run.
	inflight cmap.ConcurrentMap[string, string]
	// retrying holds references whose last attempt failed. They skip the
	// stored-time check so a lost vector write is redone.
	retrying cmap.ConcurrentMap[string, struct{}]
}

// Result summarizes one poll of one feed.
type Result struct {
	FeedID    int64
	RunID     string
	Entries   int
	Debounced int
	Busy      int
	Unchanged int
	Processed int
	Failed    int
	Duration  time.Duration
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		source:      deps.Source,
		fetcher:     deps.Fetcher,
		parser:      deps.Parser,
		debouncer:   deps.Debouncer,
		summarizer:  deps.Summarizer,
		embedder:    deps.Embedder,
		repository:  deps.Repository,
		vectorStore: deps.VectorStore,
		pool:        deps.Pool,
		logger:      log,
		now:         now,
		inflight:    cmap.New[string](),
		retrying:    cmap.New[struct{}](),
	}
}

// Feeds returns the feeds known to the source.
func (p *Pipeline) Feeds() []domain.FeedDefinition {
	if p.source == nil {
		return nil
	}
	return p.source.Feeds()
}

// PollAll polls every feed concurrently. A failing feed does not stop the
// others; feed-level errors are joined into the returned error.
func (p *Pipeline) PollAll(ctx context.Context) ([]Result, error) {
	feeds := p.Feeds()
	results := make([]Result, len(feeds))
	errs := make([]error, len(feeds))

	var g errgroup.Group
	for i, feed := range feeds {
		g.Go(func() error {
			results[i], errs[i] = p.PollFeed(ctx, feed)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// PollFeed runs one ingestion pass over a single feed. Only fetch and parse
// failures are returned; per-entry failures are logged and counted.
func (p *Pipeline) PollFeed(ctx context.Context, feed domain.FeedDefinition) (Result, error) {
	started := p.now()
	res := Result{FeedID: feed.ID, RunID: uuid.NewString()}
	log := p.logger.With("run_id", res.RunID, "feed_id", feed.ID, "feed", feed.Name)

	body, err := p.fetcher.FetchFeed(ctx, feed.URL)
	if err != nil {
		log.Warn("feed fetch failed", "error", err)
		return res, fmt.Errorf("poll feed %d: %w", feed.ID, err)
	}

	entries, err := p.parser.Parse(feed, body)
	if err != nil {
		log.Warn("feed parse failed", "error", err)
		return res, fmt.Errorf("poll feed %d: %w", feed.ID, err)
	}
	res.Entries = len(entries)

	var (
		wg                           sync.WaitGroup
		processed, unchanged, failed atomic.Int64
	)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		if !p.debouncer.IsReady(entry.Reference, entry.UpdatedAt, p.now()) {
			res.Debounced++
			continue
		}

		if !p.inflight.SetIfAbsent(entry.Reference, res.RunID) {
			res.Busy++
			log.Debug("entry already in flight", "reference", entry.Reference)
			continue
		}

		task := func() {
			defer wg.Done()
			defer p.inflight.Remove(entry.Reference)

			fail := func(err error) {
				failed.Add(1)
				p.retrying.Set(entry.Reference, struct{}{})
				p.debouncer.Retry(entry.Reference, p.now())
				log.Error("entry processing failed",
					"reference", entry.Reference,
					"feed_id", entry.FeedID,
					"error", err,
				)
			}

			if !p.retrying.Has(entry.Reference) {
				stored, err := p.alreadyStored(ctx, entry)
				if err != nil {
					fail(err)
					return
				}
				if stored {
					unchanged.Add(1)
					log.Debug("entry unchanged since last store", "reference", entry.Reference)
					return
				}
			}

			if err := p.processEntry(ctx, feed, entry); err != nil {
				fail(err)
				return
			}
			p.retrying.Remove(entry.Reference)
			processed.Add(1)
		}

		wg.Add(1)
		if p.pool == nil {
			task()
			continue
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			p.inflight.Remove(entry.Reference)
			failed.Add(1)
			log.Error("entry not scheduled", "reference", entry.Reference, "feed_id", entry.FeedID, "error", err)
		}
	}

	wg.Wait()

	res.Unchanged = int(unchanged.Load())
	res.Processed = int(processed.Load())
	res.Failed = int(failed.Load())
	res.Duration = p.now().Sub(started)

	log.Info("feed polled",
		"entries", res.Entries,
		"debounced", res.Debounced,
		"busy", res.Busy,
		"unchanged", res.Unchanged,
		"processed", res.Processed,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res, nil
}

// alreadyStored reports whether the relational store holds the entry at the
// same or a later updated time.
func (p *Pipeline) alreadyStored(ctx context.Context, entry domain.FeedEntry) (bool, error) {
	stored, ok, err := p.repository.GetUpdatedTimeIfExists(ctx, entry.Reference)
	if err != nil {
		return false, fmt.Errorf("lookup stored article: %w", err)
	}
	return ok && !stored.Before(entry.UpdatedAt), nil
}

// processEntry enriches one entry and writes it to both stores. The two
// store writes are independent: both are attempted and their errors joined.
func (p *Pipeline) processEntry(ctx context.Context, feed domain.FeedDefinition, entry domain.FeedEntry) error {
	text, err := p.articleText(ctx, feed, entry)
	if err != nil {
		return err
	}

	summary, err := p.summarizer.Summarize(ctx, entry.Title, text)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	embedding, err := p.embedder.Embed(ctx, summary.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	record := domain.NewArticleRecord(entry, summary)

	var relErr, vecErr error
	outcome, err := p.repository.UpsertArticle(ctx, record)
	if err != nil {
		relErr = fmt.Errorf("relational upsert: %w", err)
	} else {
		p.logger.Debug("article stored", "reference", entry.Reference, "feed_id", entry.FeedID, "outcome", outcome)
	}

	if err := p.vectorStore.UpsertEmbedding(ctx, entry.Reference, entry.FeedID, embedding); err != nil {
		vecErr = fmt.Errorf("vector upsert: %w", err)
	}

	return errors.Join(relErr, vecErr)
}

func (p *Pipeline) articleText(ctx context.Context, feed domain.FeedDefinition, entry domain.FeedEntry) (string, error) {
	if feed.Extractor == nil {
		return "", fmt.Errorf("feed %d has no text extractor", feed.ID)
	}

	page, err := p.fetcher.FetchPage(ctx, entry.URL)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}

	text, err := feed.Extractor.ExtractText(page, entry.URL)
	if err != nil {
		return "", fmt.Errorf("extract text with %s: %w", feed.Extractor.Name(), err)
	}
	return text, nil
}

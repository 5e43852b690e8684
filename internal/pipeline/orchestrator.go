// Package pipeline drives listing letters through discovery, dedup, detail
// resolution, merge and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/fetcher"
	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/metrics"
)

// Record outcomes reported to metrics.
const (
	outcomeNew      = "new"
	outcomeExisting = "existing"
	outcomeDetail   = "detail_failed"
	outcomeError    = "error"
)

// CandidateSource turns listing page content into candidates.
type CandidateSource interface {
	Discover(content []byte) ([]medicine.Candidate, error)
}

// DetailSource resolves a detail page.
type DetailSource interface {
	Resolve(ctx context.Context, detailURL string) (medicine.Detail, bool)
}

var tracer = otel.Tracer("github.com/JakeFAU/pharma-listing-crawler/internal/pipeline")

type failureCounter interface {
	FailedAttempts() int64
}

// Config controls the run.
type Config struct {
	BaseURL        string
	LetterPauseMin time.Duration
	LetterPauseMax time.Duration
}

// Dependencies are the collaborators of an Orchestrator. Images and
// Publisher are optional.
type Dependencies struct {
	Fetcher    medicine.Fetcher
	Discoverer CandidateSource
	Resolver   DetailSource
	Store      medicine.Store
	Images     medicine.ImageStore
	Publisher  medicine.Publisher
	Clock      medicine.Clock
	IDs        medicine.IDGenerator
	Pauser     fetcher.Pauser
	Random     func() float64
	Logger     *zap.Logger
}

// Orchestrator processes letters sequentially, candidates in document order.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	gate *DedupGate
	log  *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Discoverer == nil:
		return nil, errors.New("pipeline: discoverer is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: resolver is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("pipeline: base url is required")
	}
	if cfg.LetterPauseMax < cfg.LetterPauseMin {
		cfg.LetterPauseMax = cfg.LetterPauseMin
	}
	if deps.Pauser == nil {
		deps.Pauser = fetcher.TimerPauser{}
	}
	if deps.Random == nil {
		deps.Random = rand.Float64
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger.Named("pipeline")
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		gate: NewDedupGate(deps.Store, log),
		log:  log,
	}, nil
}

// AllLetters is the full a-z sweep.
func AllLetters() []rune {
	letters := make([]rune, 0, 26)
	for l := 'a'; l <= 'z'; l++ {
		letters = append(letters, l)
	}
	return letters
}

// RunLetter processes a single listing letter.
func (o *Orchestrator) RunLetter(ctx context.Context, letter rune) (RunReport, error) {
	return o.Run(ctx, []rune{letter})
}

// RunAll sweeps a through z with a randomized pause between letters.
func (o *Orchestrator) RunAll(ctx context.Context) (RunReport, error) {
	return o.Run(ctx, AllLetters())
}

// Run processes letters in order. Letters are validated up front; a listing
// fetch failure skips that letter. The returned error is non-nil only when
// the context ended the run early, in which case the partial report is
// still returned.
func (o *Orchestrator) Run(ctx context.Context, letters []rune) (RunReport, error) {
	for _, l := range letters {
		if _, err := medicine.ListingURL(o.cfg.BaseURL, l); err != nil {
			return RunReport{}, fmt.Errorf("invalid letter: %w", err)
		}
	}
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return RunReport{}, fmt.Errorf("generate run id: %w", err)
	}

	ctx, span := tracer.Start(ctx, "crawler.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("letters", len(letters)),
	))
	defer span.End()

	started := o.deps.Clock.Now()
	failedBefore := o.failedAttempts()
	log := o.log.With(zap.String("run_id", runID))
	log.Info("run started", zap.Int("letters", len(letters)))

	var t tally
	var runErr error
	for i, letter := range letters {
		if i > 0 {
			if err := o.deps.Pauser.Pause(ctx, o.letterPause()); err != nil {
				runErr = err
				break
			}
		}
		if err := o.processLetter(ctx, log, letter, &t); err != nil {
			runErr = err
			break
		}
	}

	report := t.report(runID, started, o.deps.Clock.Now(), o.failedAttempts()-failedBefore)
	log.Info("run finished", reportField(report))
	span.SetAttributes(
		attribute.Int("new_records", report.NewRecords),
		attribute.Int("images_stored", report.ImagesStored),
	)
	if runErr != nil {
		span.SetStatus(codes.Error, "run interrupted")
		return report, fmt.Errorf("run interrupted: %w", runErr)
	}
	return report, nil
}

func (o *Orchestrator) processLetter(ctx context.Context, log *zap.Logger, letter rune, t *tally) error {
	start := time.Now()
	defer func() { metrics.ObserveLetter(time.Since(start)) }()

	ctx, span := tracer.Start(ctx, "crawler.letter", trace.WithAttributes(attribute.String("letter", string(letter))))
	defer span.End()

	t.letters = append(t.letters, string(letter))
	listingURL, _ := medicine.ListingURL(o.cfg.BaseURL, letter)
	log = log.With(zap.String("letter", string(letter)))
	log.Info("scraping letter", zap.String("url", listingURL))

	outcome := o.deps.Fetcher.Fetch(ctx, listingURL)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !outcome.Success {
		span.SetStatus(codes.Error, "listing page unavailable")
		t.listingFailures++
		log.Warn("listing page unavailable", zap.Int("attempts", outcome.AttemptsUsed))
		return nil
	}

	candidates, err := o.deps.Discoverer.Discover(outcome.Content)
	if err != nil {
		t.listingFailures++
		log.Error("listing page unparsable", zap.Error(err))
		return nil
	}
	t.candidatesDiscovered += len(candidates)
	metrics.ObserveCandidates(string(letter), len(candidates))
	if len(candidates) == 0 {
		log.Warn("no medicine links found")
		return nil
	}
	log.Info("found medicine links", zap.Int("count", len(candidates)))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.processCandidate(ctx, log, c, t); err != nil {
			t.candidateErrors++
			metrics.ObserveRecord(outcomeError)
			log.Error("candidate failed", zap.String("url", c.URL), zap.Error(err))
			continue
		}
		t.processed++
	}
	log.Info("completed letter", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (o *Orchestrator) processCandidate(ctx context.Context, log *zap.Logger, c medicine.Candidate, t *tally) (err error) {
	externalID := medicine.ExternalID(o.cfg.BaseURL, c.URL)
	log = log.With(zap.String("external_id", externalID))

	ctx, span := tracer.Start(ctx, "crawler.candidate", trace.WithAttributes(attribute.String("external_id", externalID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "candidate failed")
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing candidate: %v", r)
		}
	}()

	admit, err := o.gate.Admit(ctx, externalID)
	if err != nil {
		return err
	}
	if !admit {
		t.skippedExisting++
		metrics.ObserveRecord(outcomeExisting)
		return nil
	}

	detail, ok := o.deps.Resolver.Resolve(ctx, c.URL)
	if !ok {
		t.detailFailures++
		metrics.ObserveRecord(outcomeDetail)
		log.Warn("could not extract detail data", zap.String("url", c.URL))
		return nil
	}

	record, imageURL := Merge(externalID, c, detail)
	identity, err := o.deps.Store.Insert(ctx, record)
	if errors.Is(err, medicine.ErrDuplicate) {
		t.skippedExisting++
		metrics.ObserveRecord(outcomeExisting)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", externalID, err)
	}
	t.newRecords++
	metrics.ObserveRecord(outcomeNew)

	if imageURL != "" && o.deps.Images != nil {
		if filename, ok := o.deps.Images.Acquire(ctx, imageURL, identity); ok {
			if err := o.deps.Store.UpdateImagePath(ctx, externalID, filename); err != nil {
				log.Warn("image path update failed", zap.String("filename", filename), zap.Error(err))
			} else {
				record.ImagePath = &filename
				t.imagesStored++
			}
		}
	}

	if o.deps.Publisher != nil {
		if err := o.deps.Publisher.PublishCreated(ctx, record); err != nil {
			log.Warn("publish failed", zap.Error(err))
		}
	}
	log.Info("successfully processed", zap.Int64("identity", identity))
	return nil
}

func (o *Orchestrator) letterPause() time.Duration {
	span := o.cfg.LetterPauseMax - o.cfg.LetterPauseMin
	return o.cfg.LetterPauseMin + time.Duration(o.deps.Random()*float64(span))
}

func (o *Orchestrator) failedAttempts() int64 {
	if fc, ok := o.deps.Fetcher.(failureCounter); ok {
		return fc.FailedAttempts()
	}
	return 0
}

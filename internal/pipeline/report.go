package pipeline

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RunReport summarizes one run. It is built once at the end of the run and
// never mutated afterwards.
type RunReport struct {
	RunID                string
	StartedAt            time.Time
	FinishedAt           time.Time
	Letters              []string
	ListingFailures      int
	CandidatesDiscovered int
	Processed            int
	SkippedExisting      int
	NewRecords           int
	DetailFailures       int
	CandidateErrors      int
	ImagesStored         int
	FailedFetchAttempts  int64
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalLogObject lets the report be logged with zap.Object.
func (r RunReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("run_id", r.RunID)
	enc.AddDuration("duration", r.Duration())
	if err := enc.AddArray("letters", zapcore.ArrayMarshalerFunc(func(arr zapcore.ArrayEncoder) error {
		for _, l := range r.Letters {
			arr.AppendString(l)
		}
		return nil
	})); err != nil {
		return err
	}
	enc.AddInt("listing_failures", r.ListingFailures)
	enc.AddInt("candidates", r.CandidatesDiscovered)
	enc.AddInt("processed", r.Processed)
	enc.AddInt("skipped_existing", r.SkippedExisting)
	enc.AddInt("new_records", r.NewRecords)
	enc.AddInt("detail_failures", r.DetailFailures)
	enc.AddInt("candidate_errors", r.CandidateErrors)
	enc.AddInt("images_stored", r.ImagesStored)
	enc.AddInt64("failed_fetch_attempts", r.FailedFetchAttempts)
	return nil
}

var _ zapcore.ObjectMarshaler = RunReport{}

// tally is the private accumulator behind a RunReport.
type tally struct {
	letters              []string
	listingFailures      int
	candidatesDiscovered int
	processed            int
	skippedExisting      int
	newRecords           int
	detailFailures       int
	candidateErrors      int
	imagesStored         int
}

func (t *tally) report(runID string, started, finished time.Time, failedAttempts int64) RunReport {
	return RunReport{
		RunID:                runID,
		StartedAt:            started,
		FinishedAt:           finished,
		Letters:              append([]string(nil), t.letters...),
		ListingFailures:      t.listingFailures,
		CandidatesDiscovered: t.candidatesDiscovered,
		Processed:            t.processed,
		SkippedExisting:      t.skippedExisting,
		NewRecords:           t.newRecords,
		DetailFailures:       t.detailFailures,
		CandidateErrors:      t.candidateErrors,
		ImagesStored:         t.imagesStored,
		FailedFetchAttempts:  failedAttempts,
	}
}

func reportField(r RunReport) zap.Field {
	return zap.Object("report", r)
}

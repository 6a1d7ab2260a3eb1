package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/glizzus/au-stream/internal/au"
	"github.com/glizzus/au-stream/internal/datalayer"
	"github.com/glizzus/au-stream/internal/pipeline"
	"github.com/glizzus/au-stream/internal/repository"
)

// ConversionObserver is told about every processed job.
type ConversionObserver interface {
	RecordConversion(status string, payloadBytes int64, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordConversion(string, int64, time.Duration) {}

// Processor converts the source object of a job and writes the result back
// to blob storage, recording the outcome.
type Processor struct {
	storage  datalayer.BlobStorage
	recorder repository.ConversionRecorder
	observer ConversionObserver
	opts     pipeline.Options
}

// NewProcessor creates a Processor. observer may be nil.
func NewProcessor(
	storage datalayer.BlobStorage,
	recorder repository.ConversionRecorder,
	observer ConversionObserver,
	opts pipeline.Options,
) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Processor{storage: storage, recorder: recorder, observer: observer, opts: opts}, nil
}

// Process runs one job to completion. The returned conversion is what was
// recorded. The error is non-nil when the conversion did not succeed or the
// outcome could not be recorded; only the latter leaves the job worth
// retrying.
func (p *Processor) Process(ctx context.Context, job ConversionJob) (repository.Conversion, error) {
	conversion := repository.Conversion{
		ID:             job.ID,
		SourceKey:      job.SourceKey,
		DestinationKey: job.DestinationKey,
	}

	start := time.Now()
	result, convErr := p.convert(ctx, job)
	elapsed := time.Since(start)
	switch {
	case convErr == nil:
		conversion.Status = repository.StatusSucceeded
		format := result.Header.Format()
		conversion.SampleType = format.SampleType.String()
		conversion.SampleRate = format.SampleRate
		conversion.Channels = format.Channels
		conversion.PayloadBytes = result.PayloadBytes
	case au.IsInputError(convErr):
		conversion.Status = repository.StatusRejected
		conversion.Error = convErr.Error()
	default:
		conversion.Status = repository.StatusFailed
		conversion.Error = convErr.Error()
	}

	p.observer.RecordConversion(string(conversion.Status), conversion.PayloadBytes, elapsed)

	if err := p.recorder.Record(ctx, conversion); err != nil {
		return conversion, &RecordError{Err: errors.Join(err, convErr)}
	}

	attrs := append(job.logAttrs(), slog.String("status", string(conversion.Status)))
	if convErr != nil {
		slog.ErrorContext(ctx, "Conversion did not succeed", append(attrs, slog.Any("error", convErr))...)
		return conversion, convErr
	}
	slog.InfoContext(
		ctx,
		"Conversion succeeded",
		append(attrs, slog.Int64("payloadBytes", conversion.PayloadBytes), slog.Duration("elapsed", elapsed))...,
	)
	return conversion, nil
}

// convert streams the source object through the pipeline straight into the
// destination object. A failed conversion aborts the upload, so no partial
// object is left behind.
func (p *Processor) convert(ctx context.Context, job ConversionJob) (result *pipeline.Result, err error) {
	src, err := p.storage.Get(ctx, job.SourceKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close source object: %w", cerr))
		}
	}()

	pr, pw := io.Pipe()

	var convErr, putErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result, convErr = pipeline.Convert(ctx, src, pw, p.opts)
		// A nil error closes the pipe with io.EOF and completes the upload.
		pw.CloseWithError(convErr)
	}()
	go func() {
		defer wg.Done()
		putErr = p.storage.Put(ctx, job.DestinationKey, pr, datalayer.PutOptions{
			Size:        -1,
			ContentType: datalayer.AUContentType,
		})
		// Pending writes see putErr, or io.ErrClosedPipe after a clean upload.
		pr.CloseWithError(putErr)
	}()
	wg.Wait()

	// A failed upload fails the conversion's writes with the upload's error.
	switch {
	case putErr != nil && (convErr == nil || errors.Is(convErr, putErr)):
		return nil, putErr
	case convErr != nil:
		return nil, convErr
	}
	return result, nil
}

// RecordError is returned when the outcome of a conversion could not be
// stored.
type RecordError struct {
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("failed to record conversion: %v", e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

var _ error = (*RecordError)(nil)

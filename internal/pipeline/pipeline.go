package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glizzus/au-stream/internal/au"
	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
	"github.com/glizzus/au-stream/internal/stream"
)

type Options struct {
	// BlockSize is the size of the blocks read from the input.
	BlockSize int
	// BinaryCapacity bounds both Binary channels, in chunks.
	BinaryCapacity int
	// AudioCapacity bounds the Audio channel, in chunks.
	AudioCapacity int
}

func DefaultOptions() Options {
	return Options{
		BlockSize:      8096,
		BinaryCapacity: 16,
		AudioCapacity:  16,
	}
}

func (o Options) Validate() error {
	if o.BlockSize < 1 {
		return fmt.Errorf("block size must be positive, got %d", o.BlockSize)
	}
	if o.BinaryCapacity < 1 {
		return fmt.Errorf("binary channel capacity must be positive, got %d", o.BinaryCapacity)
	}
	if o.AudioCapacity < 1 {
		return fmt.Errorf("audio channel capacity must be positive, got %d", o.AudioCapacity)
	}
	return nil
}

// Result describes a finished conversion.
type Result struct {
	Header       au.Header
	PayloadBytes int64
	OutputBytes  int64
	Duration     time.Duration
}

type stage struct {
	name string
	run  func(context.Context) error
}

// Convert streams the AU file read from r into w, re-encoded with a fresh
// header. It returns once every stage has stopped.
func Convert(ctx context.Context, r io.Reader, w io.Writer, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	inSink, inSource, err := channel.New[media.Binary](opts.BinaryCapacity)
	if err != nil {
		return nil, err
	}
	audioSink, audioSource, err := channel.New[media.Audio](opts.AudioCapacity)
	if err != nil {
		return nil, err
	}
	outSink, outSource, err := channel.New[media.Binary](opts.BinaryCapacity)
	if err != nil {
		return nil, err
	}

	input := NewInput(r, opts.BlockSize, inSink)
	demuxer := au.NewDemuxer(inSource, audioSink)
	muxer := au.NewMuxer(audioSource, outSink)
	output := NewOutput(outSource, w)

	start := time.Now()
	err = runStages(ctx,
		stage{name: "input", run: input.Run},
		stage{name: "demuxer", run: demuxer.Run},
		stage{name: "muxer", run: muxer.Run},
		stage{name: "output", run: output.Run},
	)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Header:       demuxer.Header(),
		PayloadBytes: muxer.PayloadBytes(),
		OutputBytes:  output.Written(),
		Duration:     time.Since(start),
	}
	slog.DebugContext(
		ctx,
		"Conversion finished",
		slog.Int64("payloadBytes", result.PayloadBytes),
		slog.Int64("outputBytes", result.OutputBytes),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// Probe reads only the header of the AU file read from r.
func Probe(ctx context.Context, r io.Reader, opts Options) (au.Header, error) {
	if err := opts.Validate(); err != nil {
		return au.Header{}, err
	}

	sink, source, err := channel.New[media.Binary](opts.BinaryCapacity)
	if err != nil {
		return au.Header{}, err
	}

	input := NewInput(r, opts.BlockSize, sink)

	var header au.Header
	err = runStages(ctx,
		stage{name: "input", run: input.Run},
		stage{name: "probe", run: func(ctx context.Context) error {
			defer source.Close()
			h, err := au.ReadHeader(stream.NewReader(ctx, source))
			if err != nil {
				return fmt.Errorf("probe: %w", err)
			}
			header = h
			return nil
		}},
	)
	return header, err
}

// runStages runs every stage concurrently and waits for all of them. When
// stages fail, errors that merely follow from another stage stopping are
// dropped in favour of the ones that caused it.
func runStages(ctx context.Context, stages ...stage) error {
	errs := make([]error, len(stages))

	var g errgroup.Group
	for i, s := range stages {
		g.Go(func() error {
			slog.DebugContext(ctx, "Stage started", slog.String("stage", s.name))
			err := s.run(ctx)
			if err != nil {
				slog.DebugContext(ctx, "Stage failed", slog.String("stage", s.name), slog.Any("error", err))
			}
			errs[i] = err
			return err
		})
	}
	if g.Wait() == nil {
		return nil
	}

	var causes, consequences []error
	for _, err := range errs {
		switch {
		case err == nil:
		case isConsequence(err):
			consequences = append(consequences, err)
		default:
			causes = append(causes, err)
		}
	}
	if len(causes) > 0 {
		return errors.Join(causes...)
	}
	return errors.Join(consequences...)
}

func isConsequence(err error) bool {
	return errors.Is(err, media.ErrTruncated) ||
		errors.Is(err, channel.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

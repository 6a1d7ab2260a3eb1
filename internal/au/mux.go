package au

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
)

// Muxer turns an Audio stream into a Binary stream holding an AU file.
type Muxer struct {
	source *channel.Source[media.Audio]
	sink   *channel.Sink[media.Binary]

	payloadBytes int64
}

func NewMuxer(source *channel.Source[media.Audio], sink *channel.Sink[media.Binary]) *Muxer {
	return &Muxer{source: source, sink: sink}
}

// PayloadBytes returns the number of sample bytes forwarded so far.
func (m *Muxer) PayloadBytes() int64 {
	return m.payloadBytes
}

// Run emits the header followed by the sample bytes of every Audio chunk, up
// to and including the final one. Both channel ends are closed when it returns.
func (m *Muxer) Run(ctx context.Context) error {
	defer m.sink.Close()
	defer m.source.Close()

	var format media.Format
	first := true

	for {
		audio, err := m.source.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("au muxer: %w", media.ErrTruncated)
		}
		if err != nil {
			return fmt.Errorf("au muxer: %w", err)
		}

		if first {
			format = audio.Format
			err := m.sink.WriteWith(ctx, func(b *media.Binary) error {
				var err error
				b.Data, err = AppendHeader(b.Data[:0], format)
				b.Final = false
				return err
			})
			if err != nil {
				return fmt.Errorf("au muxer: %w", err)
			}
			slog.DebugContext(ctx, "Wrote AU header", slog.String("format", format.String()))
			first = false
		} else if audio.Format != format {
			return fmt.Errorf("au muxer: %w", &FormatChangedError{Want: format, Got: audio.Format})
		}

		final := audio.Final
		err = m.sink.WriteWith(ctx, func(b *media.Binary) error {
			b.Data = append(b.Data[:0], audio.Data...)
			b.Final = final
			return nil
		})
		if err != nil {
			return fmt.Errorf("au muxer: %w", err)
		}
		m.payloadBytes += int64(len(audio.Data))
		m.source.Recycle(audio)

		if final {
			return nil
		}
	}
}

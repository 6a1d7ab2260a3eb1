package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
)

// Input reads fixed-size blocks from a reader and sends them as Binary chunks.
type Input struct {
	r         io.Reader
	blockSize int
	sink      *channel.Sink[media.Binary]
}

func NewInput(r io.Reader, blockSize int, sink *channel.Sink[media.Binary]) *Input {
	return &Input{r: r, blockSize: blockSize, sink: sink}
}

// Run sends blocks until the reader is exhausted, marking the last one final.
// It stops without error when the consumer goes away.
func (in *Input) Run(ctx context.Context) error {
	defer in.sink.Close()

	blocks := 0
	for final := false; !final; {
		err := in.sink.WriteWith(ctx, func(b *media.Binary) error {
			b.Data = media.Resize(b.Data, in.blockSize)
			n, err := io.ReadFull(in.r, b.Data)
			b.Data = b.Data[:n]
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				final = true
			case err != nil:
				return fmt.Errorf("failed to read input: %w", err)
			}
			b.Final = final
			return nil
		})
		if errors.Is(err, channel.ErrClosed) {
			slog.DebugContext(ctx, "Input consumer closed early", slog.Int("blocks", blocks))
			return nil
		}
		if err != nil {
			return fmt.Errorf("input: %w", err)
		}
		blocks++
	}
	return nil
}

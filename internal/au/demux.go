package au

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
	"github.com/glizzus/au-stream/internal/stream"
)

// framesPerChunk is the number of frames carried by one Audio chunk.
const framesPerChunk = 1024

// fallbackChunkSize is used when the frame size is unknown.
const fallbackChunkSize = 4096

// MaxChunkSize bounds the payload of one Audio chunk, whatever frame size the
// header declares.
const MaxChunkSize = 1 << 20

// ChunkSize returns the payload size of the Audio chunks emitted for format.
// It is a whole number of frames unless a single frame exceeds MaxChunkSize.
func ChunkSize(format media.Format) int {
	frame := int64(format.SampleType.Size()) * int64(format.Channels) / 8
	switch {
	case frame <= 0:
		return fallbackChunkSize
	case frame >= MaxChunkSize:
		return MaxChunkSize
	}
	return int(min(frame*framesPerChunk, MaxChunkSize/frame*frame))
}

// Demuxer turns a Binary stream holding an AU file into an Audio stream.
type Demuxer struct {
	source *channel.Source[media.Binary]
	sink   *channel.Sink[media.Audio]
	header Header
}

func NewDemuxer(source *channel.Source[media.Binary], sink *channel.Sink[media.Audio]) *Demuxer {
	return &Demuxer{source: source, sink: sink}
}

// Header returns the header parsed by Run. It is the zero Header until Run
// has read one.
func (d *Demuxer) Header() Header {
	return d.header
}

// Run parses the header and sends the payload downstream. Both channel ends
// are closed when it returns.
func (d *Demuxer) Run(ctx context.Context) error {
	defer d.sink.Close()
	defer d.source.Close()

	r := stream.NewReader(ctx, d.source)
	h, err := ReadHeader(r)
	if err != nil {
		return fmt.Errorf("au demuxer: %w", err)
	}
	d.header = h

	format := h.Format()
	chunkSize := ChunkSize(format)
	remaining := int64(h.DataSize)

	slog.DebugContext(
		ctx,
		"Demuxing AU stream",
		slog.String("format", format.String()),
		slog.Bool("sizeKnown", h.SizeKnown()),
		slog.Int64("dataSize", remaining),
		slog.Int("chunkSize", chunkSize),
	)

	for final := false; !final; {
		err := d.sink.WriteWith(ctx, func(audio *media.Audio) error {
			n := int64(chunkSize)
			if h.SizeKnown() {
				n = min(n, remaining)
			}
			audio.Data = media.Resize(audio.Data, int(n))

			read, err := r.ReadFull(audio.Data)
			switch {
			case err == nil:
			case !h.SizeKnown() && errors.Is(err, stream.ErrUnexpectedEndOfStream):
				// With no declared size the payload ends with the input.
				audio.Data = audio.Data[:read]
				final = true
			default:
				return fmt.Errorf("failed to read payload: %w", err)
			}

			if h.SizeKnown() {
				remaining -= int64(read)
				final = remaining == 0
			}

			audio.Format = format
			audio.Final = final
			return nil
		})
		if err != nil {
			return fmt.Errorf("au demuxer: %w", err)
		}
	}
	return nil
}

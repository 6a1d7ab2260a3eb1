package au_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/glizzus/au-stream/internal/au"
	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
)

type testFile struct {
	magic      string
	dataOffset uint32
	dataSize   uint32
	encoding   uint32
	sampleRate uint32
	channels   uint32
	padding    int
	payload    []byte
}

func (f testFile) bytes() []byte {
	var buf bytes.Buffer
	magic := f.magic
	if magic == "" {
		magic = au.Magic
	}
	buf.WriteString(magic)
	for _, v := range []uint32{f.dataOffset, f.dataSize, f.encoding, f.sampleRate, f.channels} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	buf.Write(make([]byte, f.padding))
	buf.Write(f.payload)
	return buf.Bytes()
}

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

// demux runs a Demuxer over input split into blockSize chunks and returns
// every Audio chunk it sent.
func demux(t *testing.T, input []byte, blockSize int) ([]media.Audio, *au.Demuxer, error) {
	t.Helper()
	ctx := t.Context()

	binSink, binSource, err := channel.New[media.Binary](4)
	if err != nil {
		t.Fatalf("failed to create binary channel: %v", err)
	}
	audioSink, audioSource, err := channel.New[media.Audio](4)
	if err != nil {
		t.Fatalf("failed to create audio channel: %v", err)
	}

	go func() {
		defer binSink.Close()
		for off := 0; ; off += blockSize {
			end := min(off+blockSize, len(input))
			b := media.Binary{Data: bytes.Clone(input[off:end]), Final: end == len(input)}
			if err := binSink.Send(ctx, b); err != nil || b.Final {
				return
			}
		}
	}()

	demuxer := au.NewDemuxer(binSource, audioSink)
	done := make(chan error, 1)
	go func() {
		done <- demuxer.Run(ctx)
	}()

	var chunks []media.Audio
	for {
		a, err := audioSource.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to receive audio chunk: %v", err)
		}
		chunks = append(chunks, a)
	}
	return chunks, demuxer, <-done
}

// mux runs a Muxer over the given Audio chunks and returns every Binary chunk
// it sent. The audio channel is closed after the chunks are sent.
func mux(t *testing.T, chunks ...media.Audio) ([]media.Binary, error) {
	t.Helper()
	ctx := t.Context()

	audioSink, audioSource, err := channel.New[media.Audio](len(chunks) + 1)
	if err != nil {
		t.Fatalf("failed to create audio channel: %v", err)
	}
	binSink, binSource, err := channel.New[media.Binary](4)
	if err != nil {
		t.Fatalf("failed to create binary channel: %v", err)
	}

	for _, c := range chunks {
		if err := audioSink.Send(ctx, c); err != nil {
			t.Fatalf("failed to send audio chunk: %v", err)
		}
	}
	audioSink.Close()

	done := make(chan error, 1)
	go func() {
		done <- au.NewMuxer(audioSource, binSink).Run(ctx)
	}()

	var out []media.Binary
	for {
		b, err := binSource.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to receive binary chunk: %v", err)
		}
		out = append(out, media.Binary{Data: bytes.Clone(b.Data), Final: b.Final})
	}
	return out, <-done
}

package au_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/glizzus/au-stream/internal/au"
	"github.com/glizzus/au-stream/internal/media"
	"github.com/glizzus/au-stream/internal/stream"
	"github.com/google/go-cmp/cmp"
)

// checkChunks verifies the per-stream chunk invariants and returns the
// concatenated payload.
func checkChunks(t *testing.T, chunks []media.Audio, want media.Format) []byte {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("expected at least one audio chunk")
	}

	var data []byte
	for i, c := range chunks {
		if diff := cmp.Diff(want, c.Format); diff != "" {
			t.Errorf("chunk %d format mismatch (-want +got):\n%s", i, diff)
		}
		if last := i == len(chunks)-1; c.Final != last {
			t.Errorf("chunk %d of %d has Final = %v", i, len(chunks), c.Final)
		}
		data = append(data, c.Data...)
	}
	return data
}

func TestDemuxerFloat32Stereo(t *testing.T) {
	p := payload(16000)
	input := testFile{
		dataOffset: 24,
		dataSize:   16000,
		encoding:   6,
		sampleRate: 8000,
		channels:   2,
		payload:    p,
	}.bytes()

	want := media.Format{
		SampleType: media.Float(32),
		SampleRate: 8000.0,
		Channels:   2,
		ByteOrder:  media.BigEndian,
	}

	for _, blockSize := range []int{1, 7, 24, 4096, 8096, len(input)} {
		t.Run(fmt.Sprintf("block size %d", blockSize), func(t *testing.T) {
			chunks, demuxer, err := demux(t, input, blockSize)
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}

			data := checkChunks(t, chunks, want)
			if !bytes.Equal(data, p) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(data), len(p))
			}

			// 8 bytes per frame, 1024 frames per chunk.
			if len(chunks) != 2 || len(chunks[0].Data) != 8192 || len(chunks[1].Data) != 7808 {
				t.Errorf("unexpected chunking: %d chunks", len(chunks))
			}

			wantHeader := au.Header{DataOffset: 24, DataSize: 16000, Encoding: 6, SampleRate: 8000, Channels: 2}
			if diff := cmp.Diff(wantHeader, demuxer.Header()); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDemuxerBadMagic(t *testing.T) {
	input := testFile{
		magic:      "RIFF",
		dataOffset: 24,
		dataSize:   4,
		encoding:   3,
		sampleRate: 44100,
		channels:   1,
		payload:    payload(4),
	}.bytes()

	chunks, _, err := demux(t, input, 3)

	var badMagic *au.BadMagicError
	if !errors.As(err, &badMagic) {
		t.Fatalf("expected BadMagicError, got %v", err)
	}
	if string(badMagic.Got[:]) != "RIFF" {
		t.Errorf("expected observed magic RIFF, got %q", badMagic.Got[:])
	}
	if len(chunks) != 0 {
		t.Errorf("expected no audio chunks, got %d", len(chunks))
	}
}

func TestDemuxerSkipsPadding(t *testing.T) {
	p := payload(300)
	input := testFile{
		dataOffset: 40,
		dataSize:   300,
		encoding:   3,
		sampleRate: 22050,
		channels:   1,
		padding:    16,
		payload:    p,
	}.bytes()

	chunks, _, err := demux(t, input, 10)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data := checkChunks(t, chunks, media.Format{
		SampleType: media.Unsigned(16),
		SampleRate: 22050,
		Channels:   1,
		ByteOrder:  media.BigEndian,
	})
	if diff := cmp.Diff(p, data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDemuxerIgnoresTrailingBytes(t *testing.T) {
	p := payload(64)
	input := testFile{
		dataOffset: 24,
		dataSize:   32,
		encoding:   2,
		sampleRate: 8000,
		channels:   1,
		payload:    p,
	}.bytes()

	chunks, _, err := demux(t, input, 8)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	data := checkChunks(t, chunks, media.Format{
		SampleType: media.Unsigned(8),
		SampleRate: 8000,
		Channels:   1,
		ByteOrder:  media.BigEndian,
	})
	if diff := cmp.Diff(p[:32], data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDemuxerUnknownDataSize(t *testing.T) {
	tc := []struct {
		name   string
		size   int
		chunks int
	}{
		// 2 bytes per frame, 2048 bytes per chunk.
		{name: "partial last chunk", size: 5000, chunks: 3},
		{name: "exact multiple", size: 4096, chunks: 3},
		{name: "empty payload", size: 0, chunks: 1},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			p := payload(test.size)
			input := testFile{
				dataOffset: 24,
				dataSize:   au.UnknownDataSize,
				encoding:   3,
				sampleRate: 16000,
				channels:   1,
				payload:    p,
			}.bytes()

			chunks, _, err := demux(t, input, 1000)
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			data := checkChunks(t, chunks, media.Format{
				SampleType: media.Unsigned(16),
				SampleRate: 16000,
				Channels:   1,
				ByteOrder:  media.BigEndian,
			})
			if !bytes.Equal(p, data) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(data), len(p))
			}
			if len(chunks) != test.chunks {
				t.Errorf("expected %d chunks, got %d", test.chunks, len(chunks))
			}
		})
	}
}

func TestDemuxerEmptyPayload(t *testing.T) {
	input := testFile{dataOffset: 24, dataSize: 0, encoding: 7, sampleRate: 48000, channels: 2}.bytes()

	chunks, _, err := demux(t, input, 64)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(chunks) != 1 || !chunks[0].Final || len(chunks[0].Data) != 0 {
		t.Errorf("expected a single empty final chunk, got %+v", chunks)
	}
}

func TestDemuxerUnknownEncoding(t *testing.T) {
	p := payload(5000)
	input := testFile{
		dataOffset: 24,
		dataSize:   5000,
		encoding:   1, // 8-bit mu-law
		sampleRate: 8000,
		channels:   1,
		payload:    p,
	}.bytes()

	chunks, _, err := demux(t, input, 512)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	data := checkChunks(t, chunks, media.Format{
		SampleType: media.Unknown,
		SampleRate: 8000,
		Channels:   1,
		ByteOrder:  media.BigEndian,
	})
	if !bytes.Equal(p, data) {
		t.Errorf("payload mismatch: got %d bytes, want %d", len(data), len(p))
	}
	if len(chunks[0].Data) != 4096 {
		t.Errorf("expected fallback chunk size 4096, got %d", len(chunks[0].Data))
	}
}

func TestDemuxerMalformedHeader(t *testing.T) {
	tc := []struct {
		name  string
		input []byte
		check func(error) bool
	}{
		{
			name:  "data offset inside the fixed fields",
			input: testFile{dataOffset: 16, dataSize: 0, encoding: 3, sampleRate: 8000, channels: 1}.bytes(),
			check: func(err error) bool {
				var headerErr *au.HeaderError
				return errors.As(err, &headerErr) && headerErr.Field == "data offset"
			},
		},
		{
			name:  "zero channels",
			input: testFile{dataOffset: 24, dataSize: 0, encoding: 3, sampleRate: 8000, channels: 0}.bytes(),
			check: func(err error) bool {
				var headerErr *au.HeaderError
				return errors.As(err, &headerErr) && headerErr.Field == "channels"
			},
		},
		{
			name:  "header cut short",
			input: []byte(".snd\x00\x00\x00\x18\x00"),
			check: func(err error) bool { return errors.Is(err, stream.ErrUnexpectedEndOfStream) },
		},
		{
			name:  "payload shorter than declared",
			input: testFile{dataOffset: 24, dataSize: 100, encoding: 2, sampleRate: 8000, channels: 1, payload: payload(50)}.bytes(),
			check: func(err error) bool { return errors.Is(err, stream.ErrUnexpectedEndOfStream) },
		},
		{
			name:  "padding cut short",
			input: testFile{dataOffset: 64, dataSize: 0, encoding: 2, sampleRate: 8000, channels: 1, padding: 8}.bytes(),
			check: func(err error) bool { return errors.Is(err, stream.ErrUnexpectedEndOfStream) },
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := demux(t, test.input, 5)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !test.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if !au.IsInputError(err) {
				t.Errorf("expected %v to be reported as an input error", err)
			}
		})
	}
}

func TestChunkSize(t *testing.T) {
	tc := []struct {
		name   string
		format media.Format
		want   int
	}{
		{name: "float32 stereo", format: media.Format{SampleType: media.Float(32), Channels: 2}, want: 8192},
		{name: "u8 mono", format: media.Format{SampleType: media.Unsigned(8), Channels: 1}, want: 1024},
		{name: "unknown sample type", format: media.Format{SampleType: media.Unknown, Channels: 2}, want: 4096},
		{
			name:   "capped to whole frames",
			format: media.Format{SampleType: media.Unsigned(24), Channels: 1000},
			want:   au.MaxChunkSize / 3000 * 3000,
		},
		{
			name:   "single frame larger than the cap",
			format: media.Format{SampleType: media.Float(64), Channels: 200_000},
			want:   au.MaxChunkSize,
		},
		{
			name:   "all-ones channel count",
			format: media.Format{SampleType: media.Float(64), Channels: 0xFFFFFFFF},
			want:   au.MaxChunkSize,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			if got := au.ChunkSize(test.format); got != test.want {
				t.Errorf("ChunkSize(%s) = %d; want %d", test.format, got, test.want)
			}
		})
	}
}

func TestDemuxerHugeChannelCount(t *testing.T) {
	t.Run("unknown size with no payload", func(t *testing.T) {
		input := testFile{dataOffset: 24, dataSize: au.UnknownDataSize, encoding: 7, sampleRate: 8000, channels: 0xFFFFFFFF}.bytes()

		chunks, _, err := demux(t, input, 64)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if len(chunks) != 1 || !chunks[0].Final || len(chunks[0].Data) != 0 {
			t.Errorf("expected a single empty final chunk, got %d chunks", len(chunks))
		}
		if cap(chunks[0].Data) > au.MaxChunkSize {
			t.Errorf("chunk buffer capacity %d exceeds %d", cap(chunks[0].Data), au.MaxChunkSize)
		}
	})

	t.Run("declared size larger than the input", func(t *testing.T) {
		input := testFile{dataOffset: 24, dataSize: 0xFFFFFFFE, encoding: 7, sampleRate: 8000, channels: 0xFFFFFFFF}.bytes()

		_, _, err := demux(t, input, 64)
		if !errors.Is(err, stream.ErrUnexpectedEndOfStream) {
			t.Fatalf("expected ErrUnexpectedEndOfStream, got %v", err)
		}
		if !au.IsInputError(err) {
			t.Errorf("expected %v to be reported as an input error", err)
		}
	})

	t.Run("frames wider than the cap", func(t *testing.T) {
		p := payload(2*au.MaxChunkSize + 5)
		input := testFile{dataOffset: 24, dataSize: au.UnknownDataSize, encoding: 7, sampleRate: 8000, channels: 200_000, payload: p}.bytes()

		chunks, _, err := demux(t, input, 64*1024)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		var sizes []int
		for _, c := range chunks {
			sizes = append(sizes, len(c.Data))
		}
		if diff := cmp.Diff([]int{au.MaxChunkSize, au.MaxChunkSize, 5}, sizes); diff != "" {
			t.Errorf("chunk sizes mismatch (-want +got):\n%s", diff)
		}
	})
}

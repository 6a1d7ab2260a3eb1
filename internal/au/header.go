package au

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/glizzus/au-stream/internal/media"
	"github.com/glizzus/au-stream/internal/stream"
	"github.com/glizzus/au-stream/internal/util"
)

const (
	Magic = ".snd"

	// HeaderSize is the length of the fixed header fields.
	HeaderSize = 24

	// UnknownDataSize marks a payload that runs to the end of the stream.
	UnknownDataSize = 0xFFFFFFFF
)

type encoding struct {
	code       uint32
	sampleType media.SampleType
}

var encodings = []encoding{
	{code: 2, sampleType: media.Unsigned(8)},
	{code: 3, sampleType: media.Unsigned(16)},
	{code: 4, sampleType: media.Unsigned(24)},
	{code: 5, sampleType: media.Unsigned(32)},
	{code: 6, sampleType: media.Float(32)},
	{code: 7, sampleType: media.Float(64)},
}

// SampleTypeFor maps an encoding code to a sample type. Unrecognized codes
// map to media.Unknown.
func SampleTypeFor(code uint32) media.SampleType {
	e, ok := util.FindFirst(encodings, func(e encoding) bool { return e.code == code })
	if !ok {
		return media.Unknown
	}
	return e.sampleType
}

// EncodingFor maps a sample type to its encoding code.
func EncodingFor(sampleType media.SampleType) (uint32, error) {
	e, ok := util.FindFirst(encodings, func(e encoding) bool { return e.sampleType == sampleType })
	if !ok {
		return 0, &UnsupportedSampleTypeError{SampleType: sampleType}
	}
	return e.code, nil
}

// Header is a parsed AU header.
type Header struct {
	DataOffset uint32
	DataSize   uint32
	Encoding   uint32
	SampleRate uint32
	Channels   uint32
}

func (h Header) SizeKnown() bool {
	return h.DataSize != UnknownDataSize
}

func (h Header) SampleType() media.SampleType {
	return SampleTypeFor(h.Encoding)
}

// Format returns the format stamped on every Audio chunk of the stream.
func (h Header) Format() media.Format {
	return media.Format{
		SampleType: h.SampleType(),
		SampleRate: float64(h.SampleRate),
		Channels:   int(h.Channels),
		ByteOrder:  media.BigEndian,
	}
}

// ReadHeader reads the fixed header fields and skips to the payload.
func ReadHeader(r *stream.Reader) (Header, error) {
	var magic [4]byte
	if _, err := r.ReadFull(magic[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic[:]) != Magic {
		return Header{}, &BadMagicError{Got: magic}
	}

	var h Header
	fields := []struct {
		name string
		dst  *uint32
	}{
		{"data offset", &h.DataOffset},
		{"data size", &h.DataSize},
		{"encoding", &h.Encoding},
		{"sample rate", &h.SampleRate},
		{"channels", &h.Channels},
	}
	for _, f := range fields {
		v, err := r.ReadUint32()
		if err != nil {
			return Header{}, fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		*f.dst = v
	}

	if h.DataOffset < HeaderSize {
		return Header{}, &HeaderError{Field: "data offset", Value: h.DataOffset}
	}
	if h.Channels == 0 {
		return Header{}, &HeaderError{Field: "channels", Value: h.Channels}
	}

	// Vendor data may sit between the fixed fields and the payload.
	if err := r.Skip(int64(h.DataOffset) - r.Offset()); err != nil {
		return Header{}, fmt.Errorf("failed to skip to data offset %d: %w", h.DataOffset, err)
	}
	return h, nil
}

type rawHeader struct {
	Magic      [4]byte
	DataOffset uint32
	DataSize   uint32
	Encoding   uint32
	SampleRate uint32
	Channels   uint32
}

// AppendHeader appends a header for the given format to buf. The data size is
// left unspecified.
func AppendHeader(buf []byte, format media.Format) ([]byte, error) {
	code, err := EncodingFor(format.SampleType)
	if err != nil {
		return buf, err
	}

	raw := rawHeader{
		DataOffset: HeaderSize,
		DataSize:   UnknownDataSize,
		Encoding:   code,
		SampleRate: uint32(format.SampleRate),
		Channels:   uint32(format.Channels),
	}
	copy(raw.Magic[:], Magic)
	return binary.Append(buf, binary.BigEndian, raw)
}

// BadMagicError is returned when a stream does not start with Magic.
type BadMagicError struct {
	Got [4]byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("stream did not start with magic %q, had bytes %x", Magic, e.Got[:])
}

var _ error = (*BadMagicError)(nil)

// UnsupportedSampleTypeError is returned when a sample type has no AU encoding.
type UnsupportedSampleTypeError struct {
	SampleType media.SampleType
}

func (e *UnsupportedSampleTypeError) Error() string {
	return fmt.Sprintf("unsupported sample type %s", e.SampleType)
}

var _ error = (*UnsupportedSampleTypeError)(nil)

// HeaderError is returned for a header field holding an impossible value.
type HeaderError struct {
	Field string
	Value uint32
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid %s %d in header", e.Field, e.Value)
}

var _ error = (*HeaderError)(nil)

// FormatChangedError is returned when an Audio chunk's format differs from
// the first chunk of its stream.
type FormatChangedError struct {
	Want, Got media.Format
}

func (e *FormatChangedError) Error() string {
	return fmt.Sprintf("audio format changed mid-stream from %s to %s", e.Want, e.Got)
}

var _ error = (*FormatChangedError)(nil)

// IsInputError reports whether err was caused by malformed input rather than
// by the pipeline itself.
func IsInputError(err error) bool {
	var (
		badMagic    *BadMagicError
		unsupported *UnsupportedSampleTypeError
		header      *HeaderError
		changed     *FormatChangedError
	)
	return errors.As(err, &badMagic) ||
		errors.As(err, &unsupported) ||
		errors.As(err, &header) ||
		errors.As(err, &changed) ||
		errors.Is(err, stream.ErrUnexpectedEndOfStream)
}

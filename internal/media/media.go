package media

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a chunk stream ends without a final chunk,
// which happens when the producing stage stopped early.
var ErrTruncated = errors.New("stream ended before final chunk")

// SampleKind is the numeric family of a sample.
type SampleKind uint8

const (
	KindUnknown SampleKind = iota
	KindUnsigned
	KindFloat
)

// SampleType is the encoding of a single sample: its kind and bit depth.
// The zero value is Unknown.
type SampleType struct {
	Kind SampleKind
	Bits int
}

// Unknown is the sample type of a stream whose encoding is not recognized.
var Unknown = SampleType{}

func Unsigned(bits int) SampleType {
	return SampleType{Kind: KindUnsigned, Bits: bits}
}

func Float(bits int) SampleType {
	return SampleType{Kind: KindFloat, Bits: bits}
}

// Size returns the sample size in bits, or 0 for Unknown.
func (t SampleType) Size() int {
	if t.Kind == KindUnknown {
		return 0
	}
	return t.Bits
}

func (t SampleType) String() string {
	switch t.Kind {
	case KindUnsigned:
		return fmt.Sprintf("Unsigned(%d)", t.Bits)
	case KindFloat:
		return fmt.Sprintf("Float(%d)", t.Bits)
	default:
		return "Unknown"
	}
}

type ByteOrder uint8

const (
	BigEndian ByteOrder = iota + 1
	LittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big"
	case LittleEndian:
		return "little"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

// Format describes how the bytes of an Audio chunk are to be interpreted.
type Format struct {
	SampleType SampleType
	SampleRate float64
	Channels   int
	ByteOrder  ByteOrder
}

// FrameSize returns the size of one frame (one sample per channel) in bytes.
func (f Format) FrameSize() int {
	return f.SampleType.Size() * f.Channels / 8
}

func (f Format) String() string {
	return fmt.Sprintf("%s %gHz %dch %s-endian", f.SampleType, f.SampleRate, f.Channels, f.ByteOrder)
}

// Binary is a chunk of raw container bytes.
type Binary struct {
	Data  []byte
	Final bool
}

// Audio is a chunk of raw sample bytes in the given Format.
type Audio struct {
	Format
	Data  []byte
	Final bool
}

// Resize returns buf with length n, reusing its backing array when it is
// large enough.
func Resize(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

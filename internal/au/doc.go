// Package au reads and writes Sun/NeXT AU (".snd") audio streams.
//
// The Demuxer parses an AU header from a stream of Binary chunks and re-chunks
// the payload into Audio chunks that carry the sample format. The Muxer does
// the reverse: it writes a fresh 24-byte header ahead of the payload with the
// data size left unspecified, so output can be produced without knowing the
// stream length in advance. Sample bytes are never modified.
//
// All header fields are big-endian:
//
//	magic       ".snd"
//	data offset uint32, byte offset of the payload (>= 24)
//	data size   uint32, payload length or 0xFFFFFFFF when unknown
//	encoding    uint32, see the encoding table
//	sample rate uint32
//	channels    uint32
package au

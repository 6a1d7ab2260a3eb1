// Package pipeline wires the stages of an AU conversion together.
//
//	Input -> Binary -> au.Demuxer -> Audio -> au.Muxer -> Binary -> Output
//
// Every stage runs in its own goroutine and talks to its neighbours only
// through bounded channels, so a slow Output throttles the Input. A stage
// that fails closes both of its channel ends on return; its neighbours then
// stop with media.ErrTruncated or channel.ErrClosed, and Convert reports the
// stage error that started it.
package pipeline

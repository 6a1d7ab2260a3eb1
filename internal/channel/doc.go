// Package channel provides a bounded, typed queue connecting two pipeline stages.
//
// New returns a Sink for the producing stage and a Source for the consuming
// stage. Send blocks while the queue is full and Recv blocks while it is empty.
// Closing the Sink ends the stream once the queue drains; closing the Source
// makes every pending and later send fail with ErrClosed. Stages close both of
// their ends when they return, so a failing stage never leaves a peer blocked.
//
// The consumer may hand values back with Source.Recycle. WriteWith on the Sink
// reuses them, which lets producers grow a buffer once instead of allocating
// one per chunk.
package channel

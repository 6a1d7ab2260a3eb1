// Package media defines the chunk types that flow between pipeline stages.
//
// A Binary chunk carries raw container bytes. An Audio chunk carries raw sample
// bytes together with the Format needed to interpret them. Within one stream
// every Audio chunk has the same Format and exactly one chunk, the last one,
// is marked Final.
package media

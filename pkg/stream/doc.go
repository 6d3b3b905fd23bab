// Package stream persists pipeline records as append-only JSON Lines files
// and writes stage manifests atomically.
//
// A stream is owned by exactly one writer at a time. Readers tolerate a
// final line cut short by a crash: it is skipped, and the next append
// removes it before writing.
package stream

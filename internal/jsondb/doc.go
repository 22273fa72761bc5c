// Package jsondb provides a generic list of records persisted to a single
// JSON file and exposed as observable state.
//
// # Overview
//
// A [Database] owns one [Store] (the file), one [ObservableList] (the
// in-memory copy) and one [MutationQueue]. Every write rewrites the whole
// file; there is no append mode and no partial update.
//
// # Concurrency: Single Writer
//
// Asynchronous mutations are admitted into a FIFO queue and executed one at a
// time on a background pool. Completion callbacks and observer notifications
// are delivered in order on a single foreground [Executor], never on the
// goroutine doing the I/O. Synchronous variants run on the caller's goroutine
// and are not ordered relative to the queue.
//
// # Atomic Mutations
//
// A mutation computes the new list on a copy, persists it, and only then
// commits and publishes it. A failed write leaves both the file and the
// in-memory list unchanged.
//
// # File Format
//
// A JSON array at the top level; each element is one record as produced by
// the [Codec]. No envelope, no version field.
package jsondb

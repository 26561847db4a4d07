// Package docstore is the client's narrow view of the realtime document
// store: watch a single document, watch an ordered collection, fetch once.
// Watches deliver through typed channels; consumers reduce over events
// instead of mutating state from nested callbacks.
package docstore

import "context"

// Document is one decoded document.
type Document struct {
	ID     string
	Exists bool
	Data   map[string]interface{}
}

// DocumentEvent is one update from a document watch. Err is terminal: the
// watch closes after delivering it.
type DocumentEvent struct {
	Doc Document
	Err error
}

// CollectionEvent is one snapshot from a collection watch.
type CollectionEvent struct {
	Docs []Document
	Err  error
}

// Store is the contract consumed by the bid subscription, the status listener
// and the nearby-driver lookup. Paths are slash-separated, e.g.
// "ride_requests/42/instantRide/42".
type Store interface {
	// GetDocument fetches a document once. A missing document is not an
	// error; Exists is false.
	GetDocument(ctx context.Context, path string) (Document, error)

	// WatchDocument streams updates for one document until stop is called
	// or the context is cancelled. The channel is closed on teardown.
	WatchDocument(ctx context.Context, path string) (<-chan DocumentEvent, func(), error)

	// WatchCollection streams snapshots of a collection ordered by the
	// given field, newest first.
	WatchCollection(ctx context.Context, path, orderByDesc string) (<-chan CollectionEvent, func(), error)

	// ListDocuments fetches all documents of a collection once.
	ListDocuments(ctx context.Context, path string) ([]Document, error)
}

package docstore

import (
	"context"
	"sync"
)

// FakeStore is an in-memory Store for tests. Watches are fed by pushing
// events; one-shot reads come from seeded documents.
type FakeStore struct {
	mu       sync.Mutex
	docs     map[string]Document
	docSubs  map[string][]chan DocumentEvent
	colSubs  map[string][]chan CollectionEvent
	listDocs map[string][]Document
}

// NewFakeStore creates an empty fake.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		docs:     make(map[string]Document),
		docSubs:  make(map[string][]chan DocumentEvent),
		colSubs:  make(map[string][]chan CollectionEvent),
		listDocs: make(map[string][]Document),
	}
}

// SeedDocument sets the result of GetDocument for a path.
func (f *FakeStore) SeedDocument(path string, doc Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = doc
}

// SeedCollection sets the result of ListDocuments for a path.
func (f *FakeStore) SeedCollection(path string, docs []Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listDocs[path] = docs
}

// PushDocument delivers an event to every watcher of the path.
func (f *FakeStore) PushDocument(path string, event DocumentEvent) {
	f.mu.Lock()
	subs := append([]chan DocumentEvent(nil), f.docSubs[path]...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub <- event
	}
}

// PushCollection delivers a snapshot to every watcher of the path.
func (f *FakeStore) PushCollection(path string, event CollectionEvent) {
	f.mu.Lock()
	subs := append([]chan CollectionEvent(nil), f.colSubs[path]...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub <- event
	}
}

// DocumentWatchCount reports how many watches are open on the path.
func (f *FakeStore) DocumentWatchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docSubs[path])
}

// CollectionWatchCount reports how many watches are open on the path.
func (f *FakeStore) CollectionWatchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.colSubs[path])
}

// GetDocument returns the seeded document, or a non-existent one.
func (f *FakeStore) GetDocument(_ context.Context, path string) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[path]
	if !ok {
		return Document{}, nil
	}
	return doc, nil
}

// WatchDocument opens a fake document watch.
func (f *FakeStore) WatchDocument(_ context.Context, path string) (<-chan DocumentEvent, func(), error) {
	events := make(chan DocumentEvent, 16)

	f.mu.Lock()
	f.docSubs[path] = append(f.docSubs[path], events)
	f.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			subs := f.docSubs[path]
			for i, sub := range subs {
				if sub == events {
					f.docSubs[path] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			f.mu.Unlock()
			close(events)
		})
	}

	return events, stop, nil
}

// WatchCollection opens a fake collection watch; ordering is the caller's
// pushed order.
func (f *FakeStore) WatchCollection(_ context.Context, path, _ string) (<-chan CollectionEvent, func(), error) {
	events := make(chan CollectionEvent, 16)

	f.mu.Lock()
	f.colSubs[path] = append(f.colSubs[path], events)
	f.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			subs := f.colSubs[path]
			for i, sub := range subs {
				if sub == events {
					f.colSubs[path] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			f.mu.Unlock()
			close(events)
		})
	}

	return events, stop, nil
}

// ListDocuments returns the seeded collection.
func (f *FakeStore) ListDocuments(_ context.Context, path string) ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listDocs[path], nil
}

var _ Store = (*FakeStore)(nil)

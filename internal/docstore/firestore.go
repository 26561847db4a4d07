package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore initializes the Firebase app and opens a Firestore client.
func NewFirestoreStore(ctx context.Context, projectID, credentialsPath string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

// GetDocument fetches a document once.
func (s *FirestoreStore) GetDocument(ctx context.Context, path string) (Document, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return Document{}, fmt.Errorf("invalid document path %q", path)
	}

	snap, err := ref.Get(ctx)
	if snap != nil && !snap.Exists() {
		return Document{ID: ref.ID}, nil
	}
	if err != nil {
		return Document{}, err
	}

	return Document{ID: snap.Ref.ID, Exists: true, Data: snap.Data()}, nil
}

// WatchDocument streams updates for one document.
func (s *FirestoreStore) WatchDocument(ctx context.Context, path string) (<-chan DocumentEvent, func(), error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, nil, fmt.Errorf("invalid document path %q", path)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events := make(chan DocumentEvent, 16)
	snaps := ref.Snapshots(watchCtx)

	go func() {
		defer close(events)
		defer snaps.Stop()

		for {
			snap, err := snaps.Next()
			if err != nil {
				if watchCtx.Err() != nil {
					return
				}
				events <- DocumentEvent{Err: err}
				return
			}

			doc := Document{ID: ref.ID, Exists: snap.Exists()}
			if snap.Exists() {
				doc.Data = snap.Data()
			}

			select {
			case events <- DocumentEvent{Doc: doc}:
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return events, cancel, nil
}

// WatchCollection streams snapshots of a collection, newest first.
func (s *FirestoreStore) WatchCollection(ctx context.Context, path, orderByDesc string) (<-chan CollectionEvent, func(), error) {
	col := s.client.Collection(path)
	if col == nil {
		return nil, nil, fmt.Errorf("invalid collection path %q", path)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events := make(chan CollectionEvent, 16)
	snaps := col.OrderBy(orderByDesc, firestore.Desc).Snapshots(watchCtx)

	go func() {
		defer close(events)
		defer snaps.Stop()

		for {
			snap, err := snaps.Next()
			if err != nil {
				if watchCtx.Err() != nil {
					return
				}
				events <- CollectionEvent{Err: err}
				return
			}

			var out []Document
			for {
				d, err := snap.Documents.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					events <- CollectionEvent{Err: err}
					return
				}
				out = append(out, Document{ID: d.Ref.ID, Exists: true, Data: d.Data()})
			}

			select {
			case events <- CollectionEvent{Docs: out}:
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return events, cancel, nil
}

// ListDocuments fetches all documents of a collection once.
func (s *FirestoreStore) ListDocuments(ctx context.Context, path string) ([]Document, error) {
	col := s.client.Collection(path)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", path)
	}

	iter := col.Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		d, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: d.Ref.ID, Exists: true, Data: d.Data()})
	}

	return docs, nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeranaias/delve/internal/model"
)

// DefaultCollection is the Firestore collection holding session documents.
const DefaultCollection = "sessions"

// =============================================================================
// FIRESTORE STORE
// =============================================================================

// FirestoreStore keeps one document per session in a Firestore collection.
// Document fields follow model.Record's firestore tags.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// NewFirestoreStore creates a Firestore client for projectID. The client
// honours FIRESTORE_EMULATOR_HOST.
func NewFirestoreStore(ctx context.Context, projectID, collection string, logger *zap.Logger) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
		logger:     logger.Named("firestore"),
	}, nil
}

func (s *FirestoreStore) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) sessionDoc(id string) *firestore.DocumentRef {
	return s.sessionsCol().Doc(id)
}

// Save implements Store.
func (s *FirestoreStore) Save(ctx context.Context, rec model.Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	if _, err := s.sessionDoc(rec.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("firestore Save: %w", err)
	}
	return nil
}

// AttachCanvas implements Store.
func (s *FirestoreStore) AttachCanvas(ctx context.Context, id string, canvas *model.CanvasRecord) error {
	if err := validateID(id); err != nil {
		return err
	}
	_, err := s.sessionDoc(id).Update(ctx, []firestore.Update{
		{Path: "canvas", Value: canvas},
	})
	if err != nil {
		return mapFirestoreErr("AttachCanvas", err)
	}
	return nil
}

// Load implements Store.
func (s *FirestoreStore) Load(ctx context.Context, id string) (model.Record, error) {
	if err := validateID(id); err != nil {
		return model.Record{}, err
	}
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		return model.Record{}, mapFirestoreErr("Load", err)
	}

	var rec model.Record
	if err := snap.DataTo(&rec); err != nil {
		return model.Record{}, fmt.Errorf("firestore Load decode: %w", err)
	}
	rec.ID = snap.Ref.ID
	return rec, nil
}

// List implements Store.
func (s *FirestoreStore) List(ctx context.Context) ([]model.SessionMeta, error) {
	iter := s.sessionsCol().OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	metas := []model.SessionMeta{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore List: %w", err)
		}

		var rec model.Record
		if err := snap.DataTo(&rec); err != nil {
			s.logger.Debug("skipping undecodable session document",
				zap.String("id", snap.Ref.ID), zap.Error(err))
			continue
		}
		rec.ID = snap.Ref.ID
		metas = append(metas, metaFromRecord(rec))
	}
	return metas, nil
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.sessionDoc(id).Delete(ctx, firestore.Exists); err != nil {
		return mapFirestoreErr("Delete", err)
	}
	return nil
}

// Watch implements Watcher with a snapshot listener on the collection. The
// initial snapshot is skipped.
func (s *FirestoreStore) Watch(ctx context.Context, onChange func()) error {
	it := s.sessionsCol().Snapshots(ctx)
	defer it.Stop()

	first := true
	for {
		_, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("firestore Watch: %w", err)
		}
		if first {
			first = false
			continue
		}
		onChange()
	}
}

// Close implements Store.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func mapFirestoreErr(op string, err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

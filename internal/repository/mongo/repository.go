package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

var _ repository.MetadataRepository = (*Repository)(nil)

// Repository is the Mongo-backed metadata repository. Every transition is a
// single upsert on the url key, so concurrent writers settle on
// last-writer-wins without partial documents.
type Repository struct {
	conn *Connection
}

// NewRepository creates a repository over an established store connection.
func NewRepository(conn *Connection) *Repository {
	return &Repository{conn: conn}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.conn.Collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_metadata_url"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_metadata_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure indexes: %w", err)
	}
	return nil
}

func (r *Repository) EnsureRecord(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	now := time.Now().UTC()
	_, err := r.conn.Collection().UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{
			"$setOnInsert": bson.M{
				"url":      url,
				"status":   domain.StatusPending,
				"metadata": domain.EmptyMetadata(),
				"processing": bson.M{
					"attempt_number":  pctx.AttemptNumber,
					"error_msg":       "",
					"last_attempt_at": now,
					"last_request_id": pctx.RequestID,
				},
				"created_at": now,
			},
			"$set": bson.M{"updated_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: ensure record: %w", err)
	}
	return nil
}

func (r *Repository) MarkInProgress(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	now := time.Now().UTC()
	_, err := r.conn.Collection().UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{
			"$set": bson.M{
				"status":                     domain.StatusInProgress,
				"processing.attempt_number":  pctx.AttemptNumber,
				"processing.error_msg":       "",
				"processing.last_attempt_at": now,
				"processing.last_request_id": pctx.RequestID,
				"updated_at":                 now,
			},
			"$setOnInsert": bson.M{
				"url":        url,
				"metadata":   domain.EmptyMetadata(),
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: mark in progress: %w", err)
	}
	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, url string, pctx domain.ProcessingContext, meta domain.Metadata) error {
	now := time.Now().UTC()
	_, err := r.conn.Collection().UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{
			"$setOnInsert": bson.M{
				"url":        url,
				"created_at": now,
			},
			"$set": bson.M{
				"status":                     domain.StatusCompleted,
				"metadata":                   meta,
				"processing.attempt_number":  pctx.AttemptNumber,
				"processing.error_msg":       "",
				"processing.last_attempt_at": now,
				"processing.last_request_id": pctx.RequestID,
				"updated_at":                 now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: mark completed: %w", err)
	}
	return nil
}

func (r *Repository) MarkRetryableFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) (int, error) {
	now := time.Now().UTC()
	res := r.conn.Collection().FindOneAndUpdate(ctx,
		bson.M{"url": url},
		bson.M{
			"$setOnInsert": bson.M{
				"url":        url,
				"metadata":   domain.EmptyMetadata(),
				"created_at": now,
			},
			"$set": bson.M{
				"status":                     domain.StatusFailedRetryable,
				"processing.attempt_number":  pctx.AttemptNumber,
				"processing.error_msg":       errMsg,
				"processing.last_attempt_at": now,
				"processing.last_request_id": pctx.RequestID,
				"updated_at":                 now,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var rec domain.Record
	if err := res.Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return pctx.AttemptNumber, nil
		}
		return pctx.AttemptNumber, fmt.Errorf("mongo: mark retryable failure: %w", err)
	}
	return rec.Processing.AttemptNumber, nil
}

func (r *Repository) MarkPermanentFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) error {
	now := time.Now().UTC()
	_, err := r.conn.Collection().UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{
			"$setOnInsert": bson.M{
				"url":        url,
				"metadata":   domain.EmptyMetadata(),
				"created_at": now,
			},
			"$set": bson.M{
				"status":                     domain.StatusFailedPermanent,
				"processing.error_msg":       errMsg,
				"processing.last_attempt_at": now,
				"processing.last_request_id": pctx.RequestID,
				"processing.attempt_number":  pctx.AttemptNumber,
				"updated_at":                 now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: mark permanent failure: %w", err)
	}
	return nil
}

func (r *Repository) GetByURL(ctx context.Context, url string) (*domain.Record, error) {
	var rec domain.Record
	err := r.conn.Collection().FindOne(ctx, bson.M{"url": url}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("mongo: get by url: %w", err)
	}
	return &rec, nil
}

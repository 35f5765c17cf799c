// Package mongo holds the MongoDB read models: the activity feed projected from
// the outbox and the audit log.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
)

const (
	// FeedCollectionName is the activity feed collection in MongoDB
	FeedCollectionName = "activity_feed"
)

// FeedIndexes are created at startup by the settlement worker.
var FeedIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
	{Keys: bson.D{{Key: "created_at", Value: -1}}},
}

// feedDocument is the stored shape of a ledger entry. Ids are strings and the
// amount a Decimal128 so the collection stays readable from the mongo shell.
type feedDocument struct {
	ID        string               `bson:"_id"`
	AccountID string               `bson:"account_id"`
	Kind      string               `bson:"kind"`
	Tag       string               `bson:"tag"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Reference string               `bson:"reference"`
	TaskID    string               `bson:"task_id,omitempty"`
	CreatedAt time.Time            `bson:"created_at"`
}

func toFeedDocument(e *ledger.Entry) (feedDocument, error) {
	amount, err := primitive.ParseDecimal128(e.Amount.String())
	if err != nil {
		return feedDocument{}, fmt.Errorf("failed to convert amount %s: %w", e.Amount.String(), err)
	}
	doc := feedDocument{
		ID:        e.ID.String(),
		AccountID: e.AccountID.String(),
		Kind:      string(e.Kind),
		Tag:       string(e.Tag),
		Amount:    amount,
		Reference: e.Reference,
		CreatedAt: e.CreatedAt.UTC(),
	}
	if e.TaskID != nil {
		doc.TaskID = e.TaskID.String()
	}
	return doc, nil
}

func (d feedDocument) toEntry() (*ledger.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid feed entry id %q: %w", d.ID, err)
	}
	accountID, err := uuid.Parse(d.AccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid feed account id %q: %w", d.AccountID, err)
	}
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid feed amount %q: %w", d.Amount.String(), err)
	}

	entry := &ledger.Entry{
		ID:        id,
		AccountID: accountID,
		Kind:      ledger.Kind(d.Kind),
		Tag:       ledger.Tag(d.Tag),
		Amount:    amount,
		Reference: d.Reference,
		CreatedAt: d.CreatedAt,
	}
	if d.TaskID != "" {
		taskID, err := uuid.Parse(d.TaskID)
		if err != nil {
			return nil, fmt.Errorf("invalid feed task id %q: %w", d.TaskID, err)
		}
		entry.TaskID = &taskID
	}
	return entry, nil
}

// FeedRepository implements the ledger.FeedRepository interface for MongoDB
type FeedRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewFeedRepository creates a new MongoDB activity feed repository
func NewFeedRepository(logger *slog.Logger, db *mongo.Database) ledger.FeedRepository {
	return &FeedRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the entry keyed by its id, so a message redelivered by the
// outbox poller overwrites instead of duplicating.
func (r *FeedRepository) Upsert(ctx context.Context, entry *ledger.Entry) error {
	doc, err := toFeedDocument(entry)
	if err != nil {
		return err
	}

	collection := r.db.Collection(FeedCollectionName)
	_, err = collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to upsert feed entry",
			"entry_id", doc.ID,
			"account_id", doc.AccountID,
			"error", err)
		return fmt.Errorf("failed to upsert feed entry: %w", err)
	}

	return nil
}

func (r *FeedRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	collection := r.db.Collection(FeedCollectionName)

	var doc feedDocument
	err := collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get feed entry",
			"entry_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get feed entry: %w", err)
	}

	return doc.toEntry()
}

// ListRecent returns the newest entries across all accounts.
func (r *FeedRepository) ListRecent(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	return r.find(ctx, bson.M{}, limit, 0)
}

// ListByAccount returns one account's entries, newest first.
func (r *FeedRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	return r.find(ctx, bson.M{"account_id": accountID.String()}, limit, offset)
}

func (r *FeedRepository) find(ctx context.Context, filter bson.M, limit, offset int) ([]*ledger.Entry, error) {
	collection := r.db.Collection(FeedCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to query feed entries", "filter", filter, "error", err)
		return nil, fmt.Errorf("failed to query feed entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []feedDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode feed entries", "filter", filter, "error", err)
		return nil, fmt.Errorf("failed to decode feed entries: %w", err)
	}

	entries := make([]*ledger.Entry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CountByAccount counts the feed entries for an account
func (r *FeedRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	collection := r.db.Collection(FeedCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"account_id": accountID.String()})
	if err != nil {
		r.logger.Error("Failed to count feed entries",
			"account_id", accountID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count feed entries: %w", err)
	}

	return count, nil
}

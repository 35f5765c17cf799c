package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/capital-cycle-ledger/internal/domain/audit"
)

const AuditCollectionName = "audit_log"

var AuditIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "at", Value: -1}}},
}

type auditDocument struct {
	ActorID    string    `bson:"actor_id"`
	ActorRole  string    `bson:"actor_role"`
	Action     string    `bson:"action"`
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id"`
	OldValue   any       `bson:"old_value,omitempty"`
	NewValue   any       `bson:"new_value,omitempty"`
	At         time.Time `bson:"at"`
}

// snapshot round-trips a domain value through JSON so the stored document
// uses the same field names as the HTTP API.
func snapshot(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuditRepository implements audit.Sink on a MongoDB collection.
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

var (
	_ audit.Sink   = (*AuditRepository)(nil)
	_ audit.Reader = (*AuditRepository)(nil)
)

func NewAuditRepository(logger *slog.Logger, db *mongo.Database) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Record(ctx context.Context, event audit.Event) error {
	oldValue, err := snapshot(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to encode audit old value: %w", err)
	}
	newValue, err := snapshot(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to encode audit new value: %w", err)
	}

	doc := auditDocument{
		ActorID:    event.ActorID,
		ActorRole:  event.ActorRole,
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		At:         event.At,
	}

	if _, err := r.db.Collection(AuditCollectionName).InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to record audit event",
			"action", event.Action,
			"entity_id", event.EntityID,
			"error", err)
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]audit.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := r.db.Collection(AuditCollectionName).Find(ctx,
		bson.M{"entity_type": entityType, "entity_id": entityID}, opts)
	if err != nil {
		r.logger.Error("Failed to query audit log", "entity_type", entityType, "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode audit log: %w", err)
	}

	events := make([]audit.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, audit.Event{
			ActorID:    d.ActorID,
			ActorRole:  d.ActorRole,
			Action:     d.Action,
			EntityType: d.EntityType,
			EntityID:   d.EntityID,
			OldValue:   d.OldValue,
			NewValue:   d.NewValue,
			At:         d.At,
		})
	}
	return events, nil
}

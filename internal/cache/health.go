package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// healthRateLimit is the minimum interval between two writes for the
// same component, so a flapping handler cannot flood the health store
// (spec §4.6).
const healthRateLimit = 30 * time.Second

// HealthReporter is a MongoDB-backed implementation of the Health
// Reporter component, grounded on the same collection-per-concern
// pattern as the teacher's repository/mongo package.
type HealthReporter struct {
	collection *mongo.Collection

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewHealthReporter creates a HealthReporter over the process_health
// collection of an already-connected Mongo client.
func NewHealthReporter(client *mongo.Client, database string) (*HealthReporter, error) {
	collection := client.Database(database).Collection("process_health")

	_, err := collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "component", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating process_health index: %w", err)
	}

	return &HealthReporter{
		collection: collection,
		lastSeen:   make(map[string]time.Time),
	}, nil
}

func (h *HealthReporter) rateLimited(component string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.lastSeen[component]
	if ok && time.Since(last) < healthRateLimit {
		return true
	}
	h.lastSeen[component] = time.Now()
	return false
}

// RegisterProcess upserts the initial health record for a component,
// bypassing the rate limit since registration is a one-time event per
// component lifecycle (spec §4.6).
func (h *HealthReporter) RegisterProcess(ctx context.Context, health domain.ProcessHealth) error {
	health.LastUpdate = time.Now()

	filter := bson.M{"component": health.Component}
	update := bson.M{"$set": health}
	opts := options.Update().SetUpsert(true)

	if _, err := h.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	h.mu.Lock()
	h.lastSeen[health.Component] = health.LastUpdate
	h.mu.Unlock()
	return nil
}

// UpdateProcess writes a status update for a component, silently
// dropping the write if one was already recorded within healthRateLimit
// (spec §4.6). Returns whether the write was actually performed.
func (h *HealthReporter) UpdateProcess(ctx context.Context, health domain.ProcessHealth) (bool, error) {
	if h.rateLimited(health.Component) {
		return false, nil
	}

	health.LastUpdate = time.Now()
	filter := bson.M{"component": health.Component}
	update := bson.M{"$set": health}
	opts := options.Update().SetUpsert(true)

	if _, err := h.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return true, nil
}

// DeleteByComponent removes a component's health record, used when a
// handler is permanently torn down rather than merely reconnecting.
func (h *HealthReporter) DeleteByComponent(ctx context.Context, component string) error {
	_, err := h.collection.DeleteOne(ctx, bson.M{"component": component})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	h.mu.Lock()
	delete(h.lastSeen, component)
	h.mu.Unlock()
	return nil
}

// ActiveProcesses returns every health record currently considered
// running, for use by an operator-facing health endpoint.
func (h *HealthReporter) ActiveProcesses(ctx context.Context) ([]domain.ProcessHealth, error) {
	cursor, err := h.collection.Find(ctx, bson.M{"status": domain.StatusRunning})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	defer cursor.Close(ctx)

	var results []domain.ProcessHealth
	for cursor.Next(ctx) {
		var record domain.ProcessHealth
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("decoding process health record: %w", err)
		}
		results = append(results, record)
	}
	return results, nil
}

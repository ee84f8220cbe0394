// Package store is the data gateway: typed create/read/update/delete over
// the backing collections, plus a live change feed with full-snapshot
// replace-on-update semantics. It is the single write path; callers never
// mutate cached state directly, they write here and observe the result
// through the feed.
package store

import (
	"context"
	"fmt"
	"reflect"

	"doable/internal/apperr"
	"doable/internal/events"
	"doable/internal/utils/logger"

	"gorm.io/gorm"
)

// QueryOptions mirror the remote-store query contract: equality where
// clauses, one order-by column, optional limit.
type QueryOptions struct {
	Where   map[string]interface{}
	OrderBy string
	Desc    bool
	Limit   int
}

// Gateway provides collection-scoped persistence for one model type.
type Gateway[T any] struct {
	db        *gorm.DB
	modelType T
	notifier  *Notifier
	log       *logger.Logger
}

func GormTableName(db *gorm.DB, v any) string {
	structName := reflect.TypeOf(v).Name()
	return db.NamingStrategy.TableName(structName)
}

// NewGateway creates a gateway for the model's collection. notifier may be
// nil, in which case change events stay process-local.
func NewGateway[T any](db *gorm.DB, modelType T, notifier *Notifier) *Gateway[T] {
	g := &Gateway[T]{
		db:        db,
		modelType: modelType,
		notifier:  notifier,
		log:       logger.New("Gateway"),
	}
	return g
}

// Collection returns the table name backing this gateway.
func (g *Gateway[T]) Collection() string {
	return GormTableName(g.db, g.modelType)
}

// ChangedEvent is the bus topic emitted after every mutation of collection.
func ChangedEvent(collection string) string {
	return fmt.Sprintf("%s.changed", collection)
}

func (g *Gateway[T]) Create(ctx context.Context, entity *T) error {
	if err := g.db.WithContext(ctx).Create(entity).Error; err != nil {
		return apperr.Backend("create failed", err)
	}
	g.changed(ctx)
	return nil
}

func (g *Gateway[T]) Get(ctx context.Context, id string) (*T, error) {
	var entity T
	if err := g.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, apperr.Backend("lookup failed", err)
	}
	return &entity, nil
}

// GetBy returns the first record matching the equality clauses.
func (g *Gateway[T]) GetBy(ctx context.Context, where map[string]interface{}) (*T, error) {
	var entity T
	query := g.db.WithContext(ctx)
	for key, value := range where {
		query = query.Where(key+" = ?", value)
	}
	if err := query.First(&entity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, apperr.Backend("lookup failed", err)
	}
	return &entity, nil
}

func (g *Gateway[T]) Query(ctx context.Context, opts QueryOptions) ([]T, error) {
	var entities []T
	query := g.db.WithContext(ctx).Model(&g.modelType)

	for key, value := range opts.Where {
		query = query.Where(key+" = ?", value)
	}
	if opts.OrderBy != "" {
		order := opts.OrderBy
		if opts.Desc {
			order += " DESC"
		}
		query = query.Order(order)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	if err := query.Find(&entities).Error; err != nil {
		return nil, apperr.Backend("query failed", err)
	}
	return entities, nil
}

// Updates applies a partial payload to one record. Used for the single-field
// toggle and for admin decisions; full-record replacement is not offered.
func (g *Gateway[T]) Updates(ctx context.Context, id string, values map[string]interface{}) error {
	result := g.db.WithContext(ctx).Model(&g.modelType).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return apperr.Backend("update failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	g.changed(ctx)
	return nil
}

func (g *Gateway[T]) Delete(ctx context.Context, id string) error {
	result := g.db.WithContext(ctx).Where("id = ?", id).Delete(&g.modelType)
	if result.Error != nil {
		return apperr.Backend("delete failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	g.changed(ctx)
	return nil
}

// changed fans the mutation out: once on the local bus for in-process
// subscribers, once through the notifier for the other instances.
func (g *Gateway[T]) changed(ctx context.Context) {
	collection := g.Collection()
	events.Emit(ChangedEvent(collection), nil)
	if g.notifier != nil {
		if err := g.notifier.Publish(ctx, collection); err != nil {
			g.log.Warn("Failed to publish change for %s: %v", collection, err)
		}
	}
}

// Package items maintains the live-updated shared list. The cached set is
// written only by the feed callback; every mutation goes to the gateway and
// shows up here when the resulting snapshot is pushed back, never
// optimistically.
package items

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"doable/internal/access"
	"doable/internal/apperr"
	"doable/internal/events"
	"doable/internal/models"
	"doable/internal/store"
	"doable/internal/utils/logger"

	"gorm.io/gorm"
)

// SnapshotEvent is emitted with []models.Item after every feed push, in push
// order, so the HTTP feed can forward snapshots without reaching into the
// store.
const SnapshotEvent = "items.snapshot"

const maxImageBytes = 5 << 20

// ImageUpload is an attachment accompanying a new item.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageUploader stores an attachment and returns its object key.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, filename string, contentType string) (string, error)
}

// CleanupEnqueuer schedules removal of an orphaned image after its item is
// deleted. Best effort; a failed enqueue never fails the delete.
type CleanupEnqueuer interface {
	EnqueueImageCleanup(ctx context.Context, imagePath string) error
}

type Store struct {
	gateway *store.Gateway[models.Item]
	storage ImageUploader
	cleanup CleanupEnqueuer
	log     *logger.Logger

	mu    sync.RWMutex
	items []models.Item
	sub   *store.Subscription
}

func NewStore(gateway *store.Gateway[models.Item], storage ImageUploader, cleanup CleanupEnqueuer) *Store {
	return &Store{
		gateway: gateway,
		storage: storage,
		cleanup: cleanup,
		log:     logger.New("ItemStore"),
	}
}

func itemQuery() store.QueryOptions {
	return store.QueryOptions{OrderBy: "created_at", Desc: true}
}

// Subscribe opens the live feed, newest first. There is at most one active
// subscription per store; an existing one is torn down first so snapshots
// are never delivered twice.
func (s *Store) Subscribe(ctx context.Context) error {
	s.Unsubscribe()

	sub, err := s.gateway.Subscribe(ctx, itemQuery(), func(snapshot []models.Item) {
		s.mu.Lock()
		s.items = snapshot
		s.mu.Unlock()
		// Synchronous on the feed goroutine: subscribers see snapshots in
		// push order, so the last one delivered is always the newest.
		events.EmitSync(SnapshotEvent, snapshot)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.log.Success("Item feed subscribed")
	return nil
}

// Unsubscribe releases the feed and clears the cache so nothing acts on
// stale data after a sign-out or permission downgrade.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.items = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		s.log.Info("Item feed released")
	}
}

// Snapshot returns the last pushed item set.
func (s *Store) Snapshot() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Item, len(s.items))
	copy(out, s.items)
	return out
}

// AddItem creates an entry. When an image is attached it is uploaded first;
// the item record is written only after the upload yields a retrievable key,
// so an item can never reference a missing object.
func (s *Store) AddItem(ctx context.Context, actor access.Actor, text string, image *ImageUpload) (*models.Item, error) {
	if !actor.CanMutateItems() {
		return nil, apperr.Capability("only approved users can add items")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("item text must not be empty")
	}

	var imagePath string
	if image != nil {
		if err := validateImage(image); err != nil {
			return nil, err
		}
		path, err := s.storage.UploadImage(ctx, image.Data, image.Filename, image.ContentType)
		if err != nil {
			return nil, apperr.Backend("image upload failed", err)
		}
		imagePath = path
	}

	item := &models.Item{
		Text:           text,
		ImagePath:      imagePath,
		CreatedByID:    actor.ID,
		CreatedByName:  actor.DisplayName,
		CreatedByEmail: actor.Email,
	}
	if err := s.gateway.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ToggleItem flips the completed flag via a single-field update. Any
// approved user may toggle any item; completion is a shared-list operation
// and ownership is deliberately not checked here.
func (s *Store) ToggleItem(ctx context.Context, actor access.Actor, id string, current bool) error {
	if !actor.CanMutateItems() {
		return apperr.Capability("only approved users can update items")
	}

	err := s.gateway.Updates(ctx, id, map[string]interface{}{"completed": !current})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Validation("item not found")
	}
	return err
}

// DeleteItem removes an item, owner or admin only. Removal is immediate and
// irreversible; an attached image is cleaned up afterwards.
func (s *Store) DeleteItem(ctx context.Context, actor access.Actor, id string) error {
	item, err := s.gateway.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("item not found")
		}
		return err
	}

	if !actor.CanDeleteItem(item) {
		return apperr.Capability("only the item's owner or an admin can delete it")
	}

	if err := s.gateway.Delete(ctx, id); err != nil {
		return err
	}
	s.enqueueCleanup(ctx, item)
	return nil
}

// ClearCompleted deletes the caller-visible completed items: all of them for
// an admin, only the caller's own otherwise.
func (s *Store) ClearCompleted(ctx context.Context, actor access.Actor) error {
	return s.clear(ctx, actor, true)
}

// ClearAll deletes every caller-visible item regardless of completion.
func (s *Store) ClearAll(ctx context.Context, actor access.Actor) error {
	return s.clear(ctx, actor, false)
}

// clear fans out one delete per target concurrently and waits for all of
// them. Partial failure surfaces as one aggregate error; deletions that
// succeeded are not rolled back.
func (s *Store) clear(ctx context.Context, actor access.Actor, completedOnly bool) error {
	if !actor.CanMutateItems() {
		return apperr.Capability("only approved users can clear items")
	}

	var targets []models.Item
	for _, item := range s.Snapshot() {
		if completedOnly && !item.Completed {
			continue
		}
		if !actor.IsAdmin() && item.CreatedByID != actor.ID {
			continue
		}
		targets = append(targets, item)
	}
	if len(targets) == 0 {
		return nil
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, item := range targets {
		wg.Add(1)
		go func(i int, item models.Item) {
			defer wg.Done()
			if err := s.gateway.Delete(ctx, item.ID); err != nil {
				// Already gone counts as done, another writer beat us to it.
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return
				}
				errs[i] = fmt.Errorf("delete %s: %w", item.ID, err)
				return
			}
			s.enqueueCleanup(ctx, &item)
		}(i, item)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return apperr.Backend("some items could not be deleted", err)
	}
	return nil
}

// Statistics is pure over the cached snapshot, no backend call.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return computeStatistics(s.items)
}

func (s *Store) enqueueCleanup(ctx context.Context, item *models.Item) {
	if s.cleanup == nil || item.ImagePath == "" {
		return
	}
	if err := s.cleanup.EnqueueImageCleanup(ctx, item.ImagePath); err != nil {
		s.log.Warn("Failed to enqueue image cleanup for %s: %v", item.ImagePath, err)
	}
}

func validateImage(image *ImageUpload) error {
	if len(image.Data) == 0 {
		return apperr.Validation("image file is empty")
	}
	if len(image.Data) > maxImageBytes {
		return apperr.Validation("image exceeds the 5MB limit")
	}
	if !strings.HasPrefix(image.ContentType, "image/") {
		return apperr.Validation("attachment must be an image")
	}
	return nil
}

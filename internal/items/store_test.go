package items

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"doable/internal/access"
	"doable/internal/apperr"
	"doable/internal/events"
	"doable/internal/models"
	"doable/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeUploader struct {
	mu       sync.Mutex
	keys     []string
	failWith error
}

func (f *fakeUploader) UploadImage(ctx context.Context, data []byte, filename string, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	key := "items/" + filename
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeCleanup struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeCleanup) EnqueueImageCleanup(ctx context.Context, imagePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, imagePath)
	return nil
}

func (f *fakeCleanup) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func newTestStore(t *testing.T) (*Store, *store.Gateway[models.Item], *fakeUploader, *fakeCleanup) {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Item{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gateway := store.NewGateway(db, models.Item{}, nil)
	uploader := &fakeUploader{}
	cleanup := &fakeCleanup{}
	return NewStore(gateway, uploader, cleanup), gateway, uploader, cleanup
}

var (
	approvedActor = access.Actor{ID: "u1", Email: "one@example.com", DisplayName: "One", Tier: access.TierApproved}
	otherActor    = access.Actor{ID: "u2", Email: "two@example.com", DisplayName: "Two", Tier: access.TierApproved}
	adminActor    = access.Actor{ID: "a1", Email: "admin@example.com", DisplayName: "Admin", Tier: access.TierAdmin}
)

func TestAddItemGates(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddItem(ctx, access.Anonymous(), "buy milk", nil); apperr.KindOf(err) != apperr.KindCapability {
		t.Fatalf("anonymous add: got %v, want capability error", err)
	}
	if _, err := s.AddItem(ctx, access.Actor{ID: "u1", Tier: access.TierPending}, "buy milk", nil); apperr.KindOf(err) != apperr.KindCapability {
		t.Fatalf("pending add: got %v, want capability error", err)
	}
	if _, err := s.AddItem(ctx, approvedActor, "   ", nil); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("blank text: got %v, want validation error", err)
	}
}

func TestAddItemStampsCreator(t *testing.T) {
	s, gateway, _, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddItem(ctx, approvedActor, "  buy milk  ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if item.Text != "buy milk" {
		t.Fatalf("text not trimmed: %q", item.Text)
	}
	if item.Completed {
		t.Fatal("new item must start uncompleted")
	}

	stored, err := gateway.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.CreatedByID != "u1" || stored.CreatedByName != "One" || stored.CreatedByEmail != "one@example.com" {
		t.Fatalf("creator fields wrong: %+v", stored)
	}
}

func TestAddItemWithImageUploadsFirst(t *testing.T) {
	s, gateway, uploader, _ := newTestStore(t)
	ctx := context.Background()

	image := &ImageUpload{Filename: "receipt.png", ContentType: "image/png", Data: []byte("pngbytes")}
	item, err := s.AddItem(ctx, approvedActor, "file expenses", image)
	if err != nil {
		t.Fatal(err)
	}
	if item.ImagePath != "items/receipt.png" {
		t.Fatalf("image path = %q", item.ImagePath)
	}
	if len(uploader.keys) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploader.keys))
	}

	stored, err := gateway.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ImagePath != item.ImagePath {
		t.Fatalf("stored image path = %q", stored.ImagePath)
	}
}

func TestAddItemFailedUploadWritesNothing(t *testing.T) {
	s, gateway, uploader, _ := newTestStore(t)
	ctx := context.Background()
	uploader.failWith = errors.New("bucket unavailable")

	image := &ImageUpload{Filename: "receipt.png", ContentType: "image/png", Data: []byte("pngbytes")}
	_, err := s.AddItem(ctx, approvedActor, "file expenses", image)
	if apperr.KindOf(err) != apperr.KindBackend {
		t.Fatalf("got %v, want backend error", err)
	}

	rows, err := gateway.Query(ctx, store.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("item written despite failed upload: %+v", rows)
	}
}

func TestValidateImage(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		image *ImageUpload
	}{
		{"empty file", &ImageUpload{Filename: "a.png", ContentType: "image/png"}},
		{"oversized", &ImageUpload{Filename: "a.png", ContentType: "image/png", Data: make([]byte, maxImageBytes+1)}},
		{"not an image", &ImageUpload{Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.AddItem(ctx, approvedActor, "text", tc.image); apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestToggleItem(t *testing.T) {
	s, gateway, _, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddItem(ctx, approvedActor, "buy milk", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Any approved user may toggle, not just the owner.
	if err := s.ToggleItem(ctx, otherActor, item.ID, false); err != nil {
		t.Fatal(err)
	}
	stored, err := gateway.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Completed {
		t.Fatal("toggle did not complete the item")
	}

	if err := s.ToggleItem(ctx, approvedActor, item.ID, true); err != nil {
		t.Fatal(err)
	}
	if stored, err = gateway.Get(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if stored.Completed {
		t.Fatal("toggle did not uncomplete the item")
	}

	if err := s.ToggleItem(ctx, access.Anonymous(), item.ID, false); apperr.KindOf(err) != apperr.KindCapability {
		t.Fatalf("anonymous toggle: got %v, want capability error", err)
	}
	if err := s.ToggleItem(ctx, approvedActor, "missing", false); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing item: got %v, want validation error", err)
	}
}

func TestDeleteItemOwnership(t *testing.T) {
	s, _, _, cleanup := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddItem(ctx, approvedActor, "buy milk", &ImageUpload{
		Filename: "milk.png", ContentType: "image/png", Data: []byte("x"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteItem(ctx, otherActor, item.ID); apperr.KindOf(err) != apperr.KindCapability {
		t.Fatalf("foreign delete: got %v, want capability error", err)
	}
	if err := s.DeleteItem(ctx, approvedActor, item.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteItem(ctx, approvedActor, item.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("double delete: got %v, want validation error", err)
	}

	if got := cleanup.enqueued(); len(got) != 1 || got[0] != "items/milk.png" {
		t.Fatalf("cleanup enqueued = %v", got)
	}
}

func TestAdminDeletesAnyItem(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.AddItem(ctx, approvedActor, "buy milk", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteItem(ctx, adminActor, item.ID); err != nil {
		t.Fatal(err)
	}
}

func subscribeAndWait(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Unsubscribe)
}

// waitForSnapshot polls until the cached snapshot holds want items.
func waitForSnapshot(t *testing.T, s *Store, want int) []models.Item {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snapshot := s.Snapshot()
		if len(snapshot) == want {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("snapshot never reached %d items, have %d", want, len(s.Snapshot()))
	return nil
}

func TestSnapshotFollowsMutations(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()
	subscribeAndWait(t, s)

	first, err := s.AddItem(ctx, approvedActor, "first", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, approvedActor, "second", nil); err != nil {
		t.Fatal(err)
	}
	waitForSnapshot(t, s, 2)

	if err := s.DeleteItem(ctx, approvedActor, first.ID); err != nil {
		t.Fatal(err)
	}
	snapshot := waitForSnapshot(t, s, 1)
	if snapshot[0].Text != "second" {
		t.Fatalf("remaining item = %+v", snapshot[0])
	}
}

func TestSnapshotEventEmitted(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	got := make(chan []models.Item, 8)
	cancel := events.OnWithCancel(SnapshotEvent, func(data interface{}) {
		if snapshot, ok := data.([]models.Item); ok {
			got <- snapshot
		}
	})
	defer cancel()

	subscribeAndWait(t, s)
	if _, err := s.AddItem(ctx, approvedActor, "first", nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-got:
			if len(snapshot) == 1 && snapshot[0].Text == "first" {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot event observed")
		}
	}
}

func TestClearCompletedScopedToOwner(t *testing.T) {
	s, gateway, _, _ := newTestStore(t)
	ctx := context.Background()
	subscribeAndWait(t, s)

	mine, err := s.AddItem(ctx, approvedActor, "mine done", nil)
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := s.AddItem(ctx, otherActor, "theirs done", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, approvedActor, "mine open", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleItem(ctx, approvedActor, mine.ID, false); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleItem(ctx, otherActor, theirs.ID, false); err != nil {
		t.Fatal(err)
	}
	waitForCompleted(t, s, 2)

	if err := s.ClearCompleted(ctx, approvedActor); err != nil {
		t.Fatal(err)
	}

	rows, err := gateway.Query(ctx, store.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows after clear = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.ID == mine.ID {
			t.Fatal("own completed item survived clear")
		}
	}
}

func TestAdminClearAll(t *testing.T) {
	s, gateway, _, _ := newTestStore(t)
	ctx := context.Background()
	subscribeAndWait(t, s)

	if _, err := s.AddItem(ctx, approvedActor, "one", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, otherActor, "two", nil); err != nil {
		t.Fatal(err)
	}
	waitForSnapshot(t, s, 2)

	if err := s.ClearAll(ctx, adminActor); err != nil {
		t.Fatal(err)
	}

	rows, err := gateway.Query(ctx, store.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows after admin clear = %d, want 0", len(rows))
	}
}

func TestSnapshotEventsArriveInOrder(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	cancel := events.OnWithCancel(SnapshotEvent, func(data interface{}) {
		if snapshot, ok := data.([]models.Item); ok {
			mu.Lock()
			sizes = append(sizes, len(snapshot))
			mu.Unlock()
		}
	})
	defer cancel()

	subscribeAndWait(t, s)
	for i := 0; i < 5; i++ {
		if _, err := s.AddItem(ctx, approvedActor, "item", nil); err != nil {
			t.Fatal(err)
		}
	}
	waitForSnapshot(t, s, 5)

	// The feed coalesces kicks, so sizes may skip values, but a delivery
	// must never show fewer items than the one before it.
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("snapshot sizes went backwards: %v", sizes)
		}
	}
	if len(sizes) == 0 || sizes[len(sizes)-1] != 5 {
		t.Fatalf("last delivered snapshot sizes = %v, want final 5", sizes)
	}
}

func TestClearReportsPartialFailure(t *testing.T) {
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Item{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gateway := store.NewGateway(db, models.Item{}, nil)
	s := NewStore(gateway, &fakeUploader{}, &fakeCleanup{})

	ctx := context.Background()
	subscribeAndWait(t, s)

	locked, err := s.AddItem(ctx, approvedActor, "locked", nil)
	if err != nil {
		t.Fatal(err)
	}
	deletable, err := s.AddItem(ctx, approvedActor, "deletable", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitForSnapshot(t, s, 2)

	if err := db.Exec(`CREATE TRIGGER lock_rows BEFORE DELETE ON items
		WHEN OLD.text = 'locked'
		BEGIN SELECT RAISE(ABORT, 'row is locked'); END`).Error; err != nil {
		t.Fatal(err)
	}

	err = s.ClearAll(ctx, approvedActor)
	if !apperr.IsKind(err, apperr.KindBackend) {
		t.Fatalf("got %v, want backend aggregate", err)
	}

	// The failed row stands, the successful delete is not rolled back.
	rows, err := gateway.Query(ctx, store.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != locked.ID {
		t.Fatalf("rows after partial clear = %+v", rows)
	}
	if _, err := gateway.Get(ctx, deletable.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("succeeded delete was undone: %v", err)
	}
}

func waitForCompleted(t *testing.T, s *Store, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Statistics().Completed == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("snapshot never showed %d completed items", want)
}

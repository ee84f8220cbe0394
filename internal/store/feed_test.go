package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"doable/internal/models"
)

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]models.Item
}

func (r *snapshotRecorder) record(items []models.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, items)
}

func (r *snapshotRecorder) latest() []models.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *snapshotRecorder) waitFor(t *testing.T, want int) []models.Item {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if latest := r.latest(); len(latest) == want {
			return latest
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("feed never delivered a %d-item snapshot", want)
	return nil
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if err := g.Create(ctx, &models.Item{Text: "existing", CreatedByID: "u1"}); err != nil {
		t.Fatal(err)
	}

	rec := &snapshotRecorder{}
	sub, err := g.Subscribe(ctx, QueryOptions{OrderBy: "created_at"}, rec.record)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	// The initial snapshot is pushed synchronously before Subscribe returns.
	if latest := rec.latest(); len(latest) != 1 || latest[0].Text != "existing" {
		t.Fatalf("initial snapshot = %+v", latest)
	}
}

func TestSubscribeDeliversFullSnapshotsOnChange(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	rec := &snapshotRecorder{}
	sub, err := g.Subscribe(ctx, QueryOptions{OrderBy: "created_at"}, rec.record)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := g.Create(ctx, &models.Item{Text: "first", CreatedByID: "u1"}); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, 1)

	if err := g.Create(ctx, &models.Item{Text: "second", CreatedByID: "u1"}); err != nil {
		t.Fatal(err)
	}
	snapshot := rec.waitFor(t, 2)

	// Every delivery is the complete result set, not a diff.
	if snapshot[0].Text != "first" || snapshot[1].Text != "second" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	rec := &snapshotRecorder{}
	sub, err := g.Subscribe(ctx, QueryOptions{}, rec.record)
	if err != nil {
		t.Fatal(err)
	}

	sub.Unsubscribe()
	// Safe to call twice.
	sub.Unsubscribe()

	if err := g.Create(ctx, &models.Item{Text: "after", CreatedByID: "u1"}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if latest := rec.latest(); len(latest) != 0 {
		t.Fatalf("delivery after unsubscribe: %+v", latest)
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	g := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())

	rec := &snapshotRecorder{}
	sub, err := g.Subscribe(ctx, QueryOptions{}, rec.record)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	cancel()
	time.Sleep(50 * time.Millisecond)

	if err := g.Create(context.Background(), &models.Item{Text: "after", CreatedByID: "u1"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if latest := rec.latest(); len(latest) != 0 {
		t.Fatalf("delivery after context cancel: %+v", latest)
	}
}

package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	queue "github.com/yorunavi/engine/internal/adapters/mq/queue"
	worker "github.com/yorunavi/engine/internal/adapters/mq/worker"
	"github.com/yorunavi/engine/internal/adapters/repository"
	model "github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
	logging "github.com/yorunavi/engine/pkg/logger"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan  chan queue.Event
	closeError error
	closeOnce  sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		eventChan: make(chan queue.Event, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() {
		close(mq.eventChan)
	})
	return mq.closeError
}

func (mq *mockQueue) addEvent(event queue.Event) { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	mq.eventChan <- event
}

type mockDeduper struct {
	mu        sync.Mutex
	allow     bool
	err       error
	checks    int
	forgotten []string
}

func (md *mockDeduper) ShouldCount(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, now time.Time) (bool, error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.checks++
	return md.allow, md.err
}

func (md *mockDeduper) Forget(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.forgotten = append(md.forgotten, entityID)
}

func (md *mockDeduper) forgetCount() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return len(md.forgotten)
}

type mockRecorder struct {
	mu       sync.Mutex
	err      error
	inserted []model.ViewEvent
}

func (mr *mockRecorder) InsertView(ctx context.Context, v model.ViewEvent) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if mr.err != nil {
		return mr.err
	}
	mr.inserted = append(mr.inserted, v)
	return nil
}

func (mr *mockRecorder) count() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return len(mr.inserted)
}

func testEvent(id string) queue.Event {
	return queue.Event{
		EventID:    id,
		EntityType: types.EntityCast,
		EntityID:   "cast-1",
		ViewerKey:  model.ViewerKey{CustomerID: "cust-1"},
		Area:       "okayama",
		ViewedAt:   time.Now(),
	}
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerProcessing(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a running worker", t, func() {
		convey.Convey("When the dedup decision allows the view", func() {
			mq := newMockQueue()
			deduper := &mockDeduper{allow: true}
			recorder := &mockRecorder{}
			w := worker.NewInMemoryWorker(mq, deduper, recorder, worker.WithName("test-worker"))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			mq.addEvent(testEvent("ev-1"))

			convey.Convey("Then the view is persisted", func() {
				convey.So(waitFor(t, func() bool { return recorder.count() == 1 }), convey.ShouldBeTrue)
				convey.So(deduper.forgetCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the view is a repeat inside the window", func() {
			mq := newMockQueue()
			deduper := &mockDeduper{allow: false}
			recorder := &mockRecorder{}
			w := worker.NewInMemoryWorker(mq, deduper, recorder)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			mq.addEvent(testEvent("ev-1"))

			convey.Convey("Then nothing is persisted", func() {
				convey.So(waitFor(t, func() bool { return deduper.checks == 1 }), convey.ShouldBeTrue)
				convey.So(recorder.count(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the same event id was already stored", func() {
			mq := newMockQueue()
			deduper := &mockDeduper{allow: true}
			recorder := &mockRecorder{err: repository.ErrConflict}
			w := worker.NewInMemoryWorker(mq, deduper, recorder)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			mq.addEvent(testEvent("ev-1"))

			convey.Convey("Then the duplicate delivery is swallowed without forgetting the viewer", func() {
				convey.So(waitFor(t, func() bool { return deduper.checks == 1 }), convey.ShouldBeTrue)
				convey.So(deduper.forgetCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the persist fails for another reason", func() {
			mq := newMockQueue()
			deduper := &mockDeduper{allow: true}
			recorder := &mockRecorder{err: errors.New("connection reset")}
			w := worker.NewInMemoryWorker(mq, deduper, recorder)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			mq.addEvent(testEvent("ev-1"))

			convey.Convey("Then the cached decision is forgotten so the viewer can be retried", func() {
				convey.So(waitFor(t, func() bool { return deduper.forgetCount() == 1 }), convey.ShouldBeTrue)
				convey.So(recorder.count(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker with queued events", t, func() {
		mq := newMockQueue()
		deduper := &mockDeduper{allow: true}
		recorder := &mockRecorder{}
		w := worker.NewInMemoryWorker(mq, deduper, recorder)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		mq.addEvent(testEvent("ev-1"))
		mq.addEvent(testEvent("ev-2"))

		convey.Convey("When the events have been drained", func() {
			convey.So(waitFor(t, func() bool { return recorder.count() == 2 }), convey.ShouldBeTrue)

			convey.Convey("Then shutdown completes cleanly", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPoolLifecycle(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker pool", t, func() {
		mq := newMockQueue()
		deduper := &mockDeduper{allow: true}
		recorder := &mockRecorder{}
		pool := worker.NewPool(2, mq, deduper, recorder)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When events arrive", func() {
			mq.addEvent(testEvent("ev-1"))
			mq.addEvent(testEvent("ev-2"))
			mq.addEvent(testEvent("ev-3"))

			convey.So(waitFor(t, func() bool { return recorder.count() == 3 }), convey.ShouldBeTrue)

			convey.Convey("Then shutdown drains the pool", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

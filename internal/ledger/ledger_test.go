package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublingo/sublingo/internal/notify"
)

// memStore mirrors the SQLite store's behavior, including the partial
// uniqueness rule over non-terminal (media, target) pairs.
type memStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func newMemStore() *memStore {
	return &memStore{requests: make(map[string]*Request)}
}

func (s *memStore) InsertRequest(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.Media == req.Media && existing.TargetLang == req.TargetLang && !existing.Status.Terminal() {
			return ErrDuplicate
		}
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *memStore) GetRequest(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *memStore) UpdateRequest(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return ErrNotFound
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *memStore) ListRequests(_ context.Context) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*Request, 0, len(s.requests))
	for _, req := range s.requests {
		clone := *req
		ret = append(ret, &clone)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.After(ret[j].CreatedAt) })
	return ret, nil
}

func (s *memStore) ListByStatus(_ context.Context, statuses ...Status) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*Request, 0)
	for _, req := range s.requests {
		for _, status := range statuses {
			if req.Status == status {
				clone := *req
				ret = append(ret, &clone)
				break
			}
		}
	}
	return ret, nil
}

func (s *memStore) CountByStatus(ctx context.Context, statuses ...Status) (int, error) {
	list, err := s.ListByStatus(ctx, statuses...)
	return len(list), err
}

func (s *memStore) HasBlockingRequest(_ context.Context, media MediaRef, targetLang string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.Media != media || req.TargetLang != targetLang {
			continue
		}
		if !req.Status.Terminal() || req.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	enqueued  []string
	cancelled []string
	seq       int
}

func (d *fakeDispatcher) Enqueue(requestID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.enqueued = append(d.enqueued, requestID)
	return fmt.Sprintf("job-%d", d.seq), nil
}

func (d *fakeDispatcher) Cancel(handle string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, handle)
	return true
}

func tempSubtitle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.en.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n\n"), 0o644))
	return path
}

func newTestLedger(t *testing.T) (*Ledger, *memStore, *fakeDispatcher, *notify.Hub) {
	t.Helper()
	store := newMemStore()
	hub := notify.NewHub()
	l := New(store, hub)
	dispatch := &fakeDispatcher{}
	l.SetDispatcher(dispatch)
	return l, store, dispatch, hub
}

func TestCreateRequest_EnqueuesAndStoresHandle(t *testing.T) {
	l, _, dispatch, hub := newTestLedger(t)
	events, cancel := hub.Subscribe(4)
	defer cancel()

	req, err := l.CreateRequest(context.Background(), CreateParams{
		Title:        "Movie (2021)",
		SourceLang:   "en",
		TargetLang:   "ro",
		SubtitlePath: tempSubtitle(t),
		Media:        MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "job-1", req.JobHandle)
	assert.Equal(t, []string{req.ID}, dispatch.enqueued)

	event := <-events
	assert.Equal(t, notify.TopicActiveCount, event.Topic)
	assert.Equal(t, notify.ActiveCountEvent{ActiveRequestCount: 1}, event.Payload)
}

func TestCreateRequest_RejectsSameSourceAndTarget(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	_, err := l.CreateRequest(context.Background(), CreateParams{
		SourceLang:   "en",
		TargetLang:   "en",
		SubtitlePath: tempSubtitle(t),
		Media:        MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.Error(t, err)
}

func TestCreateRequest_RejectsUnreadableSubtitle(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	_, err := l.CreateRequest(context.Background(), CreateParams{
		SourceLang:   "en",
		TargetLang:   "ro",
		SubtitlePath: filepath.Join(t.TempDir(), "missing.srt"),
		Media:        MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.Error(t, err)
}

func TestCreateRequest_DuplicateActivePairLosesRace(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	sub := tempSubtitle(t)
	media := MediaRef{ID: "m1", Kind: MediaMovie}

	_, err := l.CreateRequest(context.Background(), CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: sub, Media: media,
	})
	require.NoError(t, err)

	_, err = l.CreateRequest(context.Background(), CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: sub, Media: media,
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// A different target language is a different unit of work.
	_, err = l.CreateRequest(context.Background(), CreateParams{
		SourceLang: "en", TargetLang: "fr", SubtitlePath: sub, Media: media,
	})
	require.NoError(t, err)
}

func TestTransitionTo_TerminalStateIsSticky(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	req, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: tempSubtitle(t),
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)

	_, err = l.TransitionTo(ctx, req.ID, StatusInProgress)
	require.NoError(t, err)
	done, err := l.TransitionTo(ctx, req.ID, StatusCompleted, WithOutputPath("/out/movie.ro.srt"))
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "/out/movie.ro.srt", done.OutputPath)

	// Redelivery after completion must not resurrect the request.
	again, err := l.TransitionTo(ctx, req.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestTransitionTo_UnknownIDFails(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	_, err := l.TransitionTo(context.Background(), "nope", StatusInProgress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_DelegatesToQueueLeavesStatusAlone(t *testing.T) {
	l, _, dispatch, _ := newTestLedger(t)
	ctx := context.Background()

	req, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: tempSubtitle(t),
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, req.ID))
	assert.Equal(t, []string{req.JobHandle}, dispatch.cancelled)

	// Final status assignment belongs to the worker's cancellation handler.
	current, err := l.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, current.Status)
}

func TestCancel_TerminalRequestIsNoop(t *testing.T) {
	l, _, dispatch, _ := newTestLedger(t)
	ctx := context.Background()

	req, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: tempSubtitle(t),
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)
	_, err = l.TransitionTo(ctx, req.ID, StatusFailed, WithError("boom"))
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, req.ID))
	assert.Empty(t, dispatch.cancelled)
}

func TestActiveCount_TracksTerminalTransitions(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	sub := tempSubtitle(t)

	first, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: sub,
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)
	_, err = l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "fr", SubtitlePath: sub,
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)

	count, err := l.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = l.TransitionTo(ctx, first.ID, StatusCancelled)
	require.NoError(t, err)

	count, err = l.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResume_ReEnqueuesUnfinishedWork(t *testing.T) {
	store := newMemStore()
	l := New(store, nil)
	ctx := context.Background()
	sub := tempSubtitle(t)

	// No dispatcher yet: simulates requests persisted by a previous process.
	req, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: sub,
		Media: MediaRef{ID: "m1", Kind: MediaMovie},
	})
	require.NoError(t, err)
	_, err = l.TransitionTo(ctx, req.ID, StatusInProgress, WithJobHandle("stale-handle"))
	require.NoError(t, err)

	dispatch := &fakeDispatcher{}
	l.SetDispatcher(dispatch)
	require.NoError(t, l.Resume(ctx))

	resumed, err := l.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resumed.Status)
	assert.NotEqual(t, "stale-handle", resumed.JobHandle)
	assert.Equal(t, []string{req.ID}, dispatch.enqueued)
}

func TestHasBlockingRequest_FailedDoesNotBlock(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	media := MediaRef{ID: "m1", Kind: MediaMovie}

	req, err := l.CreateRequest(ctx, CreateParams{
		SourceLang: "en", TargetLang: "ro", SubtitlePath: tempSubtitle(t), Media: media,
	})
	require.NoError(t, err)

	blocking, err := l.HasBlockingRequest(ctx, media, "ro")
	require.NoError(t, err)
	assert.True(t, blocking)

	_, err = l.TransitionTo(ctx, req.ID, StatusFailed, WithError("rate limited"))
	require.NoError(t, err)

	blocking, err = l.HasBlockingRequest(ctx, media, "ro")
	require.NoError(t, err)
	assert.False(t, blocking)
}

package ledger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sublingo/sublingo/internal/notify"
	"github.com/sublingo/sublingo/pkg/log"
)

// Dispatcher hands units of work to the durable queue.
type Dispatcher interface {
	Enqueue(requestID string) (jobHandle string, err error)
	Cancel(jobHandle string) bool
}

// Ledger is the single writer of request state. All status transitions go
// through it so a cancellation racing a completion resolves inside the
// store's own transaction.
type Ledger struct {
	store    Store
	notifier notify.Publisher

	mu       sync.RWMutex
	dispatch Dispatcher
}

func New(store Store, notifier notify.Publisher) *Ledger {
	if notifier == nil {
		notifier = notify.NopPublisher{}
	}
	return &Ledger{store: store, notifier: notifier}
}

// SetDispatcher wires the queue in. The queue needs the worker which needs
// the ledger, so this link is established after construction.
func (l *Ledger) SetDispatcher(d Dispatcher) {
	l.mu.Lock()
	l.dispatch = d
	l.mu.Unlock()
}

func (l *Ledger) dispatcher() Dispatcher {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dispatch
}

// CreateParams carries everything needed to open a request.
type CreateParams struct {
	Title        string
	SourceLang   string
	TargetLang   string
	SubtitlePath string
	Media        MediaRef
}

// CreateRequest inserts a pending request, enqueues its unit of work and
// records the job handle. Safe for concurrent callers: when a race creates
// the same (media, target) pair twice, the store's uniqueness check lets
// exactly one win and the loser gets ErrDuplicate.
func (l *Ledger) CreateRequest(ctx context.Context, params CreateParams) (*Request, error) {
	if params.SourceLang == params.TargetLang {
		return nil, fmt.Errorf("target language %q equals source language", params.TargetLang)
	}
	if err := checkReadable(params.SubtitlePath); err != nil {
		return nil, fmt.Errorf("subtitle to translate: %w", err)
	}

	now := time.Now().UTC()
	req := &Request{
		ID:           uuid.NewString(),
		Title:        params.Title,
		SourceLang:   params.SourceLang,
		TargetLang:   params.TargetLang,
		SubtitlePath: params.SubtitlePath,
		Media:        params.Media,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := l.store.InsertRequest(ctx, req); err != nil {
		return nil, err
	}

	if d := l.dispatcher(); d != nil {
		handle, err := d.Enqueue(req.ID)
		if err != nil {
			// The request stays pending; Resume will pick it up.
			log.Error("Failed to enqueue request %s: %v", req.ID, err)
		} else {
			req.JobHandle = handle
			req.UpdatedAt = time.Now().UTC()
			if err := l.store.UpdateRequest(ctx, req); err != nil {
				log.Error("Failed to record job handle for request %s: %v", req.ID, err)
			}
		}
	}

	l.publishActiveCount(ctx)
	return req, nil
}

// TransitionOption mutates fields alongside a status change.
type TransitionOption func(*Request)

func WithJobHandle(handle string) TransitionOption {
	return func(r *Request) { r.JobHandle = handle }
}

func WithOutputPath(path string) TransitionOption {
	return func(r *Request) { r.OutputPath = path }
}

func WithError(message string) TransitionOption {
	return func(r *Request) { r.ErrorMessage = message }
}

// TransitionTo is the only sanctioned way to mutate status. Transitions out
// of a terminal state are no-ops, which makes queue redelivery of finished
// requests harmless.
func (l *Ledger) TransitionTo(ctx context.Context, id string, status Status, opts ...TransitionOption) (*Request, error) {
	req, err := l.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return req, nil
	}

	req.Status = status
	for _, opt := range opts {
		opt(req)
	}
	now := time.Now().UTC()
	req.UpdatedAt = now
	if status.Terminal() {
		req.CompletedAt = &now
	}

	if err := l.store.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	if status.Terminal() {
		l.publishActiveCount(ctx)
	}
	return req, nil
}

// Cancel terminates the queued job, if any. Final status assignment is left
// to the worker's cancellation handler so we never race an in-flight
// execution; cancelling an already-terminal request is a no-op.
func (l *Ledger) Cancel(ctx context.Context, id string) error {
	req, err := l.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return nil
	}

	if d := l.dispatcher(); d != nil && req.JobHandle != "" {
		if !d.Cancel(req.JobHandle) {
			log.Warn("Job %s for request %s was no longer cancellable", req.JobHandle, id)
		}
	}
	return nil
}

// Get returns one request.
func (l *Ledger) Get(ctx context.Context, id string) (*Request, error) {
	return l.store.GetRequest(ctx, id)
}

// List returns all requests, newest first per the store's ordering.
func (l *Ledger) List(ctx context.Context) ([]*Request, error) {
	return l.store.ListRequests(ctx)
}

// ActiveCount recomputes on demand; it backs a UI indicator that must never
// be stale after a completion or cancellation.
func (l *Ledger) ActiveCount(ctx context.Context) (int, error) {
	return l.store.CountByStatus(ctx, StatusPending, StatusInProgress)
}

// HasBlockingRequest is the detector's dedup query.
func (l *Ledger) HasBlockingRequest(ctx context.Context, media MediaRef, targetLang string) (bool, error) {
	return l.store.HasBlockingRequest(ctx, media, targetLang)
}

// Resume re-enqueues every request a prior run left unfinished. Job handles
// from the previous process are not trusted across restarts.
func (l *Ledger) Resume(ctx context.Context) error {
	d := l.dispatcher()
	if d == nil {
		return fmt.Errorf("dispatcher not configured")
	}

	stale, err := l.store.ListByStatus(ctx, StatusPending, StatusInProgress)
	if err != nil {
		return fmt.Errorf("list resumable requests: %w", err)
	}

	for _, req := range stale {
		handle, err := d.Enqueue(req.ID)
		if err != nil {
			log.Error("Failed to re-enqueue request %s: %v", req.ID, err)
			continue
		}
		if _, err := l.TransitionTo(ctx, req.ID, StatusPending, WithJobHandle(handle)); err != nil {
			log.Error("Failed to persist resumed request %s: %v", req.ID, err)
		}
	}
	if len(stale) > 0 {
		log.Info("Resumed %d unfinished translation requests", len(stale))
	}
	return nil
}

func (l *Ledger) publishActiveCount(ctx context.Context) {
	count, err := l.store.CountByStatus(ctx, StatusPending, StatusInProgress)
	if err != nil {
		log.Warn("Failed to count active requests: %v", err)
		return
	}
	l.notifier.Publish(notify.TopicActiveCount, notify.ActiveCountEvent{ActiveRequestCount: count})
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

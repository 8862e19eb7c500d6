package ledger

import "context"

// Store persists requests. Implementations must enforce the single-active-
// request-per-(media,target) invariant at insert time and report violations
// as ErrDuplicate.
type Store interface {
	InsertRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequest(ctx context.Context, req *Request) error
	ListRequests(ctx context.Context) ([]*Request, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Request, error)
	CountByStatus(ctx context.Context, statuses ...Status) (int, error)
	// HasBlockingRequest reports whether a request exists for (media, target)
	// in pending, in-progress or completed status. Failed and cancelled
	// requests never block recreation.
	HasBlockingRequest(ctx context.Context, media MediaRef, targetLang string) (bool, error)
}

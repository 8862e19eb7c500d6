// Package ledger owns the translation request lifecycle: one durable record
// per (media, target language) unit of work, from creation through a terminal
// state.
package ledger

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal states never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type MediaKind string

const (
	MediaMovie   MediaKind = "movie"
	MediaEpisode MediaKind = "episode"
)

// MediaRef identifies the media item a request belongs to.
type MediaRef struct {
	ID   string    `json:"id"`
	Kind MediaKind `json:"kind"`
}

// Request is the unit of translation work.
type Request struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SourceLang   string     `json:"sourceLang"`
	TargetLang   string     `json:"targetLang"`
	SubtitlePath string     `json:"subtitlePath"`
	OutputPath   string     `json:"outputPath,omitempty"`
	Media        MediaRef   `json:"media"`
	Status       Status     `json:"status"`
	JobHandle    string     `json:"jobHandle,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

var (
	// ErrNotFound means the request id does not exist.
	ErrNotFound = errors.New("translation request not found")
	// ErrDuplicate means the (media, target) pair already has a request in a
	// non-terminal status; the caller should treat creation as a no-op.
	ErrDuplicate = errors.New("active translation request already exists")
)

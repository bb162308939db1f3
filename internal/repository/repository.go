package repository

import (
	"time"

	"github.com/google/uuid"
)

// Record is the outcome of one finished download run.
type Record struct {
	ID               uuid.UUID `json:"id"`
	URL              string    `json:"url"`
	OutputPath       string    `json:"outputPath"`
	FinalPath        string    `json:"finalPath,omitempty"`
	ContentLength    int64     `json:"contentLength"`
	BytesTransferred int64     `json:"bytesTransferred"`
	Threads          int       `json:"threads"`
	Chunks           int       `json:"chunks"`
	Code             int       `json:"code"`
	Message          string    `json:"message,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

// Succeeded reports whether the run ended with 200 or 206.
func (r *Record) Succeeded() bool {
	return r.Code == 200 || r.Code == 206
}

// Duration is the wall time of the run.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Repository interface {
	Save(record *Record) error
	Find(id uuid.UUID) (*Record, error)
	FindAll() ([]*Record, error)
	Delete(id uuid.UUID) error
	Prune(keep int) (int, error)
	Close() error
}

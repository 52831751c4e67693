package store

import (
	"context"
	"errors"

	"github.com/seantiz/arbiter/internal/model"
)

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// FeedbackStats holds aggregate feedback statistics.
type FeedbackStats struct {
	Total         int                `json:"total"`
	RunsEvaluated int                `json:"runs_evaluated"`
	CountByKey    map[string]int     `json:"count_by_key"`
	AvgScoreByKey map[string]float64 `json:"avg_score_by_key"`
}

// Store defines the persistence operations for runs and feedback.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	InsertFeedback(ctx context.Context, f *model.Feedback) error
	ListFeedbackByRun(ctx context.Context, runID string) ([]model.Feedback, error)
	GetFeedbackStats(ctx context.Context) (*FeedbackStats, error)
	Close() error
}

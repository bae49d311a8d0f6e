package http

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// DefaultRunStoreCapacity bounds the in-memory run history.
const DefaultRunStoreCapacity = 1000

// RunStore keeps recent workflow results in memory. The least recently used
// result is evicted once capacity is reached.
type RunStore struct {
	capacity int
	runs     *lru.Cache[string, *orchestrator.Result]
}

// NewRunStore creates a store. capacity <= 0 uses DefaultRunStoreCapacity.
func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultRunStoreCapacity
	}
	// lru.New only fails for a non-positive size.
	runs, _ := lru.New[string, *orchestrator.Result](capacity)
	return &RunStore{capacity: capacity, runs: runs}
}

// Put stores result under its run ID, replacing any earlier entry.
func (s *RunStore) Put(result *orchestrator.Result) {
	if result == nil {
		return
	}
	s.runs.Add(result.RunID, result)
}

// Get returns the result for id.
func (s *RunStore) Get(id string) (*orchestrator.Result, bool) {
	return s.runs.Get(id)
}

// Len returns the number of stored runs.
func (s *RunStore) Len() int {
	return s.runs.Len()
}

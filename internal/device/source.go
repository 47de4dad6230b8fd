// SPDX-License-Identifier: MIT
package device

import (
	"math"
	"sync"

	"ducker/internal/ducking"
)

// StaticSource reports a fixed level that can be changed at runtime.
type StaticSource struct {
	mu sync.Mutex
	db float64
}

// NewStaticSource returns a source fixed at db.
func NewStaticSource(db float64) *StaticSource {
	s := &StaticSource{}
	s.Set(db)
	return s
}

// Level returns the current level.
func (s *StaticSource) Level() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db, nil
}

// Set changes the reported level. NaN and values below the floor are
// reported as the floor.
func (s *StaticSource) Set(db float64) {
	if math.IsNaN(db) || db < ducking.FloorDB {
		db = ducking.FloorDB
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

package opportunity

import (
	"sync"
	"time"

	"github.com/amirphl/rank-trader/internal/ranking"
)

// State is the memory a Detector keeps between cycles: recent ranking
// snapshots and the symbols already announced per direction. Create one per
// live session or backtest run.
type State struct {
	mu        sync.Mutex
	history   *ranking.History
	announced map[Direction]map[string]struct{}
	lastReset time.Time
}

func NewState() *State {
	return &State{
		history: ranking.NewHistory(ranking.DefaultHistorySize),
		announced: map[Direction]map[string]struct{}{
			Long:  {},
			Short: {},
		},
	}
}

// Announced reports whether symbol was already emitted for dir since the last reset.
func (s *State) Announced(dir Direction, symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.announced[dir][symbol]
	return ok
}

func (s *State) LastReset() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReset
}

func (s *State) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// resetIfDue clears the announced sets when none were ever reset or the
// last reset is more than ResetInterval old. Callers hold mu.
func (s *State) resetIfDue(now time.Time) bool {
	if !s.lastReset.IsZero() && now.Sub(s.lastReset) <= ResetInterval {
		return false
	}
	s.announced[Long] = map[string]struct{}{}
	s.announced[Short] = map[string]struct{}{}
	s.lastReset = now
	return true
}

// Package conversation holds the page-lifetime chat state: the append-only
// turn log and the recent-questions buffer. Nothing here is persisted;
// state is rebuilt from the server on reload.
package conversation

import (
	"sync"

	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
)

// Store is the turn log. User turns are appended once and never touched
// again; system turns are appended once per resolved generation and may be
// patched in place (last turn only) by the retry and variable-apply flows.
type Store struct {
	mu    sync.Mutex
	turns []models.ConversationItem
}

func NewStore() *Store {
	return &Store{}
}

// Append adds a turn to the end of the log.
func (s *Store) Append(turn models.ConversationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// PatchLast applies fn to the last turn in place. The patch is addressed
// by position, not id: the flows that patch always own the most recent
// system turn. No-op on an empty log.
func (s *Store) PatchLast(fn func(*models.ConversationItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return
	}
	fn(&s.turns[len(s.turns)-1])
}

// Reset clears the log.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Snapshot returns a copy of the log for rendering.
func (s *Store) Snapshot() []models.ConversationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationItem, len(s.turns))
	copy(out, s.turns)
	return out
}

// Context serializes the accumulated turns into the context entries sent
// with the next generation request.
func (s *Store) Context() []models.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]models.ContextEntry, 0, len(s.turns))
	for _, turn := range s.turns {
		entries = append(entries, models.ContextEntry{
			Question:  turn.Question,
			SQL:       turn.SQL,
			Result:    turn.Result,
			IsUser:    turn.IsUser,
			Timestamp: turn.Timestamp,
		})
	}
	return entries
}

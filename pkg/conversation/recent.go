package conversation

import "sync"

// RecentCapacity bounds the recent-questions buffer.
const RecentCapacity = 5

// RecentQuestions is a bounded most-recent-first buffer of submitted
// questions. Re-inserting an existing question moves it to the front
// instead of duplicating it.
type RecentQuestions struct {
	mu        sync.Mutex
	questions []string
}

func NewRecentQuestions() *RecentQuestions {
	return &RecentQuestions{}
}

// Add inserts a question at the front, deduplicating and truncating to
// capacity.
func (r *RecentQuestions) Add(question string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filtered := r.questions[:0]
	for _, q := range r.questions {
		if q != question {
			filtered = append(filtered, q)
		}
	}
	r.questions = append([]string{question}, filtered...)
	if len(r.questions) > RecentCapacity {
		r.questions = r.questions[:RecentCapacity]
	}
}

// List returns the buffer contents, most recent first.
func (r *RecentQuestions) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.questions))
	copy(out, r.questions)
	return out
}

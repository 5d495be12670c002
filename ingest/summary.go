package ingest

import (
	"sync"
	"time"

	"github.com/pevans/archscraper/store"
)

// Article outcomes besides the store's inserted, updated and unchanged.
const (
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Sample identifies one article stored during a run.
type Sample struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SourceSummary counts what happened to one source during a run.
type SourceSummary struct {
	Source    string        `json:"source"`
	Found     int           `json:"found"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Sample    *Sample       `json:"sample,omitempty"`
	Err       error         `json:"-"`
}

// Processed is the number of articles written or confirmed in the store.
func (s SourceSummary) Processed() int {
	return s.Inserted + s.Updated + s.Unchanged
}

// Summary is the result of a run.
type Summary struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Sources   []SourceSummary `json:"sources"`
}

// Totals sums the per-source counts.
func (s *Summary) Totals() SourceSummary {
	total := SourceSummary{Source: "total", Duration: s.Duration}
	for _, src := range s.Sources {
		total.Found += src.Found
		total.Inserted += src.Inserted
		total.Updated += src.Updated
		total.Unchanged += src.Unchanged
		total.Skipped += src.Skipped
		total.Failed += src.Failed
		if total.Err == nil {
			total.Err = src.Err
		}
	}
	return total
}

// tally accumulates a SourceSummary from concurrent workers.
type tally struct {
	mu      sync.Mutex
	summary SourceSummary
}

func (t *tally) found() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Found++
}

func (t *tally) record(outcome string, sample *Sample, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch outcome {
	case string(store.Inserted):
		t.summary.Inserted++
	case string(store.Updated):
		t.summary.Updated++
	case string(store.Unchanged):
		t.summary.Unchanged++
	case OutcomeSkipped:
		t.summary.Skipped++
	case OutcomeFailed:
		t.summary.Failed++
	}
	if t.summary.Sample == nil && sample != nil {
		t.summary.Sample = sample
	}
	t.keepFirst(err)
}

// fail records an error that is not tied to an article.
func (t *tally) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keepFirst(err)
}

func (t *tally) keepFirst(err error) {
	if err != nil && t.summary.Err == nil {
		t.summary.Err = err
	}
}

func (t *tally) result() SourceSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// seenSet tracks URLs already handled in a run.
type seenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{urls: make(map[string]struct{})}
}

// Add reports whether url was not yet seen, marking it seen.
func (s *seenSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Package store keeps statistics about finished games.
package store

import (
    "context"
    "sort"
    "sync"
    "time"
)

// Result describes one finished game.
type Result struct {
    SessionID  string    `json:"session_id"`
    Mode       string    `json:"mode"`
    Difficulty string    `json:"difficulty,omitempty"`
    Winner     string    `json:"winner"`
    Moves      int       `json:"moves"`
    FinishedAt time.Time `json:"finished_at"`
}

// Tally counts outcomes for one bucket.
type Tally struct {
    XWins int64 `json:"x_wins"`
    OWins int64 `json:"o_wins"`
    Draws int64 `json:"draws"`
}

// Total is the number of games in the tally.
func (t Tally) Total() int64 { return t.XWins + t.OWins + t.Draws }

func (t *Tally) add(winner string) {
    switch winner {
    case "X":
        t.XWins++
    case "O":
        t.OWins++
    default:
        t.Draws++
    }
}

// Stats maps a bucket key (see BucketKey) to its tally.
type Stats map[string]Tally

// BucketKey groups results by mode and, when set, difficulty.
func BucketKey(r Result) string {
    if r.Difficulty == "" {
        return r.Mode
    }
    return r.Mode + "/" + r.Difficulty
}

// Recorder persists finished games.
type Recorder interface {
    Record(ctx context.Context, r Result) error
    Stats(ctx context.Context) (Stats, error)
    Recent(ctx context.Context, n int) ([]Result, error)
}

// RecentLimit caps how many results are retained for Recent.
const RecentLimit = 100

// MemoryStore is an in-process Recorder.
type MemoryStore struct {
    mu     sync.Mutex
    stats  Stats
    recent []Result
}

func NewMemoryStore() *MemoryStore {
    return &MemoryStore{stats: make(Stats)}
}

func (m *MemoryStore) Record(_ context.Context, r Result) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    key := BucketKey(r)
    t := m.stats[key]
    t.add(r.Winner)
    m.stats[key] = t
    m.recent = append([]Result{r}, m.recent...)
    if len(m.recent) > RecentLimit {
        m.recent = m.recent[:RecentLimit]
    }
    return nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make(Stats, len(m.stats))
    for k, v := range m.stats {
        out[k] = v
    }
    return out, nil
}

// Recent returns up to n results, newest first.
func (m *MemoryStore) Recent(_ context.Context, n int) ([]Result, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    n = min(max(n, 0), len(m.recent))
    return append([]Result(nil), m.recent[:n]...), nil
}

// SortedKeys returns bucket keys in lexical order.
func (s Stats) SortedKeys() []string {
    keys := make([]string, 0, len(s))
    for k := range s {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}

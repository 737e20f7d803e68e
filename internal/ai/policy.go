package ai

import (
    "fmt"
    "math/rand/v2"
    "strings"
    "sync"
    "time"

    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

// Difficulty selects the computer's move strategy.
type Difficulty uint8

const (
    Easy Difficulty = iota
    Medium
    Hard
)

// DefaultMediumOptimalRate is the probability that Medium plays the Hard
// move instead of a random one.
const DefaultMediumOptimalRate = 0.5

func (d Difficulty) String() string {
    switch d {
    case Easy:
        return "easy"
    case Medium:
        return "medium"
    case Hard:
        return "hard"
    default:
        return fmt.Sprintf("difficulty(%d)", uint8(d))
    }
}

// Description is a one-line summary suitable for display.
func (d Difficulty) Description() string {
    switch d {
    case Easy:
        return "The computer makes random moves."
    case Medium:
        return "The computer mixes random moves with optimal play."
    case Hard:
        return "The computer plays perfectly and never loses."
    default:
        return ""
    }
}

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool { return d <= Hard }

// ParseDifficulty accepts the String form, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "easy":
        return Easy, nil
    case "medium":
        return Medium, nil
    case "hard":
        return Hard, nil
    }
    return 0, fmt.Errorf("unknown difficulty %q", s)
}

// Rand is the randomness the policy consumes. *math/rand/v2.Rand satisfies it.
type Rand interface {
    IntN(n int) int
    Float64() float64
}

// Policy picks moves per difficulty. It is safe for concurrent use.
type Policy struct {
    mu         sync.Mutex
    rng        Rand
    mediumRate float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithMediumOptimalRate overrides DefaultMediumOptimalRate. Values are clamped to [0,1].
func WithMediumOptimalRate(p float64) Option {
    return func(pol *Policy) {
        pol.mediumRate = min(max(p, 0), 1)
    }
}

// NewPolicy returns a policy drawing from rng. A nil rng is replaced by a
// time-seeded generator.
func NewPolicy(rng Rand, opts ...Option) *Policy {
    if rng == nil {
        rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
    }
    p := &Policy{rng: rng, mediumRate: DefaultMediumOptimalRate}
    for _, o := range opts {
        o(p)
    }
    return p
}

// MediumOptimalRate returns the configured blend probability.
func (p *Policy) MediumOptimalRate() float64 { return p.mediumRate }

// SelectMove returns the index the computer plays on b.
func (p *Policy) SelectMove(b domain.Board, d Difficulty, computer domain.Cell) (int, error) {
    if domain.Evaluate(b).Decided() {
        return -1, ErrNoLegalMoves
    }
    switch d {
    case Easy:
        return p.randomMove(b), nil
    case Medium:
        if p.roll() < p.mediumRate {
            return BestMove(b, computer)
        }
        return p.randomMove(b), nil
    case Hard:
        return BestMove(b, computer)
    default:
        return -1, fmt.Errorf("select move: unknown difficulty %d", d)
    }
}

func (p *Policy) randomMove(b domain.Board) int {
    empty := domain.EmptyIndices(b)
    p.mu.Lock()
    defer p.mu.Unlock()
    return empty[p.rng.IntN(len(empty))]
}

func (p *Policy) roll() float64 {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.rng.Float64()
}

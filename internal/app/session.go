package app

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

// Computer is the side the computer plays in PlayerVsComputer mode.
const Computer = domain.O

// DefaultComputerDelay is how long the computer "thinks" before its move lands.
const DefaultComputerDelay = 600 * time.Millisecond

// Errors exposed by sessions.
var (
    ErrInvalidTransition = errors.New("invalid transition")
    ErrStale             = errors.New("computer move superseded")
)

// Mode selects who plays O.
type Mode uint8

const (
    PlayerVsComputer Mode = iota
    PlayerVsPlayer
)

func (m Mode) String() string {
    if m == PlayerVsPlayer {
        return "player-vs-player"
    }
    return "player-vs-computer"
}

// ParseMode accepts the String form and a few short aliases.
func ParseMode(s string) (Mode, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "player-vs-computer", "player-vs-ai", "pvc", "ai":
        return PlayerVsComputer, nil
    case "player-vs-player", "pvp":
        return PlayerVsPlayer, nil
    }
    return 0, fmt.Errorf("unknown mode %q", s)
}

// State is the controller state.
type State uint8

const (
    AwaitingHumanMove State = iota
    ComputerThinking
    GameOver
)

func (s State) String() string {
    switch s {
    case ComputerThinking:
        return "computer_thinking"
    case GameOver:
        return "game_over"
    default:
        return "awaiting_human_move"
    }
}

// Snapshot is a consistent copy of a session. Version increases with every
// observer notification; Generation with every change to the timeline.
type Snapshot struct {
    ID            string
    Mode          Mode
    Difficulty    ai.Difficulty
    Board         domain.Board
    CurrentPlayer domain.Cell
    Outcome       domain.Outcome
    State         State
    Move          int
    History       []domain.Board
    Generation    uint64
    Version       uint64
    Created       time.Time
    Updated       time.Time
}

// ComputerThinking reports whether a computer move is outstanding.
func (s Snapshot) ComputerThinking() bool { return s.State == ComputerThinking }

// StatusText is a short human readable status line.
func (s Snapshot) StatusText() string {
    switch {
    case s.Outcome.Status == domain.Win:
        return fmt.Sprintf("Player %s wins!", s.Outcome.Winner)
    case s.Outcome.Status == domain.Draw:
        return "It's a draw!"
    case s.State == ComputerThinking:
        return "Computer is thinking..."
    default:
        return fmt.Sprintf("Next player: %s", s.CurrentPlayer)
    }
}

// Change tells an observer what happened.
type Change uint8

const (
    ChangeMove Change = iota
    ChangeComputerMove
    ChangeThinking
    ChangeJump
    ChangeReset
    ChangeSettings
)

func (c Change) String() string {
    switch c {
    case ChangeMove:
        return "move"
    case ChangeComputerMove:
        return "computer_move"
    case ChangeThinking:
        return "thinking"
    case ChangeJump:
        return "jump"
    case ChangeReset:
        return "reset"
    default:
        return "settings"
    }
}

// Event is delivered to the observer after every state change, outside the session lock.
type Event struct {
    Change   Change
    Snapshot Snapshot
}

// MoveResult is what a requested computer move resolves to.
type MoveResult struct {
    Index   int
    Outcome domain.Outcome
    Err     error
}

// SessionOptions configure a Session. Zero values pick defaults.
type SessionOptions struct {
    Mode              Mode
    Difficulty        ai.Difficulty
    DefaultDifficulty ai.Difficulty
    Delay             time.Duration
    Policy            *ai.Policy
    Observer          func(Event)
}

// Session is one game: board timeline, turn order and the computer opponent.
// Every mutation bumps the generation; a computer move computed against an
// older generation is discarded.
type Session struct {
    mu      sync.Mutex
    id      string
    opts    SessionOptions
    mode    Mode
    diff    ai.Difficulty
    history domain.History
    move    int
    state   State
    gen     uint64
    version uint64
    pending bool
    cancel  context.CancelFunc
    created time.Time
    updated time.Time
}

// NewSession starts a game on an empty board.
func NewSession(id string, opts SessionOptions) *Session {
    if opts.Policy == nil {
        opts.Policy = ai.NewPolicy(nil)
    }
    now := time.Now()
    s := &Session{
        id:      id,
        opts:    opts,
        mode:    opts.Mode,
        diff:    opts.Difficulty,
        history: domain.NewHistory(),
        created: now,
        updated: now,
    }
    s.state = s.derive()
    return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) board() domain.Board {
    b, _ := s.history.Jump(s.move)
    return b
}

func (s *Session) computerToMove(b domain.Board) bool {
    return s.mode == PlayerVsComputer && b.ToMove() == Computer
}

// derive computes the state after a move lands on the current board.
func (s *Session) derive() State {
    b := s.board()
    switch {
    case domain.Evaluate(b).Decided():
        return GameOver
    case s.computerToMove(b):
        return ComputerThinking
    default:
        return AwaitingHumanMove
    }
}

func (s *Session) snapshotLocked() Snapshot {
    b := s.board()
    return Snapshot{
        ID:            s.id,
        Mode:          s.mode,
        Difficulty:    s.diff,
        Board:         b,
        CurrentPlayer: b.ToMove(),
        Outcome:       domain.Evaluate(b),
        State:         s.state,
        Move:          s.move,
        History:       s.history.Snapshots(),
        Generation:    s.gen,
        Version:       s.version,
        Created:       s.created,
        Updated:       s.updated,
    }
}

func (s *Session) touchLocked() {
    s.gen++
    s.updated = time.Now()
}

// unlockAndNotify releases the lock and then tells the observer.
func (s *Session) unlockAndNotify(c Change) Snapshot {
    s.version++
    snap := s.snapshotLocked()
    obs := s.opts.Observer
    s.mu.Unlock()
    if obs != nil {
        obs(Event{Change: c, Snapshot: snap})
    }
    return snap
}

// State returns a snapshot of the session.
func (s *Session) State() Snapshot {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.snapshotLocked()
}

// History returns the board timeline.
func (s *Session) History() []domain.Board {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.history.Snapshots()
}

// place applies p at idx on the current board, truncating any undone moves.
func (s *Session) place(idx int, p domain.Cell) (domain.Outcome, error) {
    next, err := domain.Apply(s.board(), idx, p)
    if err != nil {
        return domain.Outcome{}, err
    }
    h, err := s.history.TruncateAndAppend(s.move, next)
    if err != nil {
        return domain.Outcome{}, err
    }
    s.history = h
    s.move++
    s.touchLocked()
    s.state = s.derive()
    return domain.Evaluate(next), nil
}

// ApplyHumanMove plays idx for whoever is to move. In PlayerVsComputer mode
// only X is human.
func (s *Session) ApplyHumanMove(idx int) (domain.Outcome, error) {
    s.mu.Lock()
    switch s.state {
    case ComputerThinking:
        s.mu.Unlock()
        return domain.Outcome{}, fmt.Errorf("%w: computer is to move", ErrInvalidTransition)
    case GameOver:
        s.mu.Unlock()
        return domain.Outcome{}, domain.ErrGameOver
    }
    b := s.board()
    if s.computerToMove(b) {
        s.mu.Unlock()
        return domain.Outcome{}, fmt.Errorf("%w: computer is to move", ErrInvalidTransition)
    }
    out, err := s.place(idx, b.ToMove())
    if err != nil {
        s.mu.Unlock()
        return domain.Outcome{}, err
    }
    s.unlockAndNotify(ChangeMove)
    return out, nil
}

// RequestComputerMove starts the computer's move in the background. The
// returned channel receives exactly one result. The move is applied only if
// the session has not changed since the request; otherwise the result carries
// ErrStale. Cancelling ctx abandons the move.
func (s *Session) RequestComputerMove(ctx context.Context) (<-chan MoveResult, error) {
    s.mu.Lock()
    b := s.board()
    switch {
    case s.pending:
        s.mu.Unlock()
        return nil, fmt.Errorf("%w: computer move already pending", ErrInvalidTransition)
    case s.state == GameOver:
        s.mu.Unlock()
        return nil, fmt.Errorf("%w: game is over", ErrInvalidTransition)
    case !s.computerToMove(b):
        s.mu.Unlock()
        return nil, fmt.Errorf("%w: not the computer's turn", ErrInvalidTransition)
    }
    tctx, cancel := context.WithCancel(ctx)
    s.pending = true
    s.cancel = cancel
    s.state = ComputerThinking
    gen, diff := s.gen, s.diff
    s.unlockAndNotify(ChangeThinking)

    ch := make(chan MoveResult, 1)
    go s.think(tctx, cancel, gen, b, diff, ch)
    return ch, nil
}

func (s *Session) think(ctx context.Context, cancel context.CancelFunc, gen uint64, b domain.Board, diff ai.Difficulty, ch chan<- MoveResult) {
    defer cancel()
    if s.opts.Delay > 0 {
        timer := time.NewTimer(s.opts.Delay)
        select {
        case <-ctx.Done():
            timer.Stop()
            ch <- s.abandon(gen, ctx.Err())
            return
        case <-timer.C:
        }
    }
    idx, err := s.opts.Policy.SelectMove(b, diff, Computer)

    s.mu.Lock()
    if gen != s.gen {
        s.mu.Unlock()
        ch <- MoveResult{Index: -1, Err: ErrStale}
        return
    }
    if err == nil {
        err = ctx.Err()
    }
    var out domain.Outcome
    if err == nil {
        out, err = s.place(idx, Computer)
    }
    s.pending = false
    s.cancel = nil
    if err != nil {
        s.mu.Unlock()
        ch <- MoveResult{Index: -1, Err: err}
        return
    }
    s.unlockAndNotify(ChangeComputerMove)
    ch <- MoveResult{Index: idx, Outcome: out}
}

// abandon clears the pending flag after cancellation. The state stays
// ComputerThinking so the move can be requested again.
func (s *Session) abandon(gen uint64, cause error) MoveResult {
    s.mu.Lock()
    defer s.mu.Unlock()
    if gen != s.gen {
        return MoveResult{Index: -1, Err: ErrStale}
    }
    s.pending = false
    s.cancel = nil
    return MoveResult{Index: -1, Err: cause}
}

// cancelPendingLocked drops any outstanding computer move.
func (s *Session) cancelPendingLocked() {
    if s.cancel != nil {
        s.cancel()
    }
    s.cancel = nil
    s.pending = false
}

// JumpToMove moves the view to snapshot index. Turn and outcome are
// recomputed from the snapshot. Rejected while the computer is to move.
func (s *Session) JumpToMove(index int) (domain.Outcome, error) {
    s.mu.Lock()
    return s.jumpLocked(index)
}

// Undo steps back one move.
func (s *Session) Undo() (domain.Outcome, error) {
    s.mu.Lock()
    return s.jumpLocked(s.move - 1)
}

// jumpLocked is called with s.mu held and always releases it.
func (s *Session) jumpLocked(index int) (domain.Outcome, error) {
    if s.state == ComputerThinking {
        s.mu.Unlock()
        return domain.Outcome{}, fmt.Errorf("%w: computer is thinking", ErrInvalidTransition)
    }
    b, err := s.history.Jump(index)
    if err != nil {
        s.mu.Unlock()
        return domain.Outcome{}, err
    }
    s.move = index
    s.touchLocked()
    out := domain.Evaluate(b)
    if out.Decided() {
        s.state = GameOver
    } else {
        s.state = AwaitingHumanMove
    }
    s.unlockAndNotify(ChangeJump)
    return out, nil
}

// Reset starts over on an empty board with the default difficulty. Any
// pending computer move is discarded.
func (s *Session) Reset() Snapshot {
    s.mu.Lock()
    s.resetLocked()
    return s.unlockAndNotify(ChangeReset)
}

func (s *Session) resetLocked() {
    s.cancelPendingLocked()
    s.history = domain.NewHistory()
    s.move = 0
    s.diff = s.opts.DefaultDifficulty
    s.touchLocked()
    s.state = s.derive()
}

// SetDifficulty takes effect on the next computer move.
func (s *Session) SetDifficulty(d ai.Difficulty) error {
    if !d.Valid() {
        return fmt.Errorf("set difficulty: unknown difficulty %d", d)
    }
    s.mu.Lock()
    if s.state == ComputerThinking {
        s.mu.Unlock()
        return fmt.Errorf("%w: computer is thinking", ErrInvalidTransition)
    }
    s.diff = d
    s.updated = time.Now()
    s.unlockAndNotify(ChangeSettings)
    return nil
}

// SetMode switches between PvP and PvC and restarts the game.
func (s *Session) SetMode(m Mode) error {
    s.mu.Lock()
    if s.state == ComputerThinking {
        s.mu.Unlock()
        return fmt.Errorf("%w: computer is thinking", ErrInvalidTransition)
    }
    if m == s.mode {
        s.mu.Unlock()
        return nil
    }
    s.mode = m
    s.resetLocked()
    s.unlockAndNotify(ChangeReset)
    return nil
}

// Close discards any pending computer move.
func (s *Session) Close() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.cancelPendingLocked()
    s.touchLocked()
}

package app

import (
    "context"
    "errors"
    "log/slog"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
    "github.com/jaminalder/tictactoe-engine/internal/store"
)

// Errors exposed by the service layer.
var (
    ErrNotFound = errors.New("game not found")
)

const recordTimeout = 2 * time.Second

type subscriber struct {
    ch        chan Snapshot
    closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Config tunes a Service.
type Config struct {
    DefaultMode       Mode
    DefaultDifficulty ai.Difficulty
    ComputerDelay     time.Duration
    Policy            *ai.Policy
    Recorder          store.Recorder
    Logger            *slog.Logger
}

// Service manages sessions and subscribers. It drives the computer player:
// whenever a session lands on the computer's turn a move is requested.
type Service struct {
    mu       sync.Mutex
    sessions map[string]*Session
    subs     map[string]map[*subscriber]struct{}
    versions map[string]uint64
    cfg      Config
    ctx      context.Context
    cancel   context.CancelFunc
}

// NewService creates a service with defaults: PvC, medium, no think delay,
// in-memory results.
func NewService() *Service {
    return NewServiceWithConfig(Config{DefaultDifficulty: ai.Medium})
}

// NewServiceWithConfig creates a service from cfg. Nil collaborators get defaults.
func NewServiceWithConfig(cfg Config) *Service {
    if cfg.Policy == nil {
        cfg.Policy = ai.NewPolicy(nil)
    }
    if cfg.Recorder == nil {
        cfg.Recorder = store.NewMemoryStore()
    }
    if cfg.Logger == nil {
        cfg.Logger = slog.Default()
    }
    ctx, cancel := context.WithCancel(context.Background())
    return &Service{
        sessions: make(map[string]*Session),
        subs:     make(map[string]map[*subscriber]struct{}),
        versions: make(map[string]uint64),
        cfg:      cfg,
        ctx:      ctx,
        cancel:   cancel,
    }
}

// DefaultDifficulty is used by CreateGame callers that do not pick one.
func (s *Service) DefaultDifficulty() ai.Difficulty { return s.cfg.DefaultDifficulty }

// DefaultMode is used by CreateGame callers that do not pick one.
func (s *Service) DefaultMode() Mode { return s.cfg.DefaultMode }

// CreateGame creates and registers a new game.
func (s *Service) CreateGame(mode Mode, difficulty ai.Difficulty) (Snapshot, error) {
    if !difficulty.Valid() {
        return Snapshot{}, errors.New("create game: unknown difficulty")
    }
    id := uuid.NewString()
    sess := NewSession(id, SessionOptions{
        Mode:              mode,
        Difficulty:        difficulty,
        DefaultDifficulty: s.cfg.DefaultDifficulty,
        Delay:             s.cfg.ComputerDelay,
        Policy:            s.cfg.Policy,
        Observer:          s.observe,
    })
    s.mu.Lock()
    s.sessions[id] = sess
    s.mu.Unlock()
    s.cfg.Logger.Info("game created", "id", id, "mode", mode, "difficulty", difficulty)
    return sess.State(), nil
}

func (s *Service) session(id string) (*Session, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sess, ok := s.sessions[id]
    if !ok {
        return nil, ErrNotFound
    }
    return sess, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (Snapshot, bool) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, false
    }
    return sess.State(), true
}

// History returns the board timeline of a game.
func (s *Service) History(id string) ([]domain.Board, error) {
    sess, err := s.session(id)
    if err != nil {
        return nil, err
    }
    return sess.History(), nil
}

// Play applies a human move and, in PvC mode, kicks off the computer reply.
func (s *Service) Play(id string, idx int) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    if _, err := sess.ApplyHumanMove(idx); err != nil {
        return sess.State(), err
    }
    return s.driveComputer(sess), nil
}

// RequestComputerMove asks for the computer's move explicitly.
func (s *Service) RequestComputerMove(id string) (<-chan MoveResult, error) {
    sess, err := s.session(id)
    if err != nil {
        return nil, err
    }
    return sess.RequestComputerMove(s.ctx)
}

// Jump moves a game to history index.
func (s *Service) Jump(id string, index int) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    if _, err := sess.JumpToMove(index); err != nil {
        return sess.State(), err
    }
    return s.driveComputer(sess), nil
}

// Undo steps a game back one move.
func (s *Service) Undo(id string) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    if _, err := sess.Undo(); err != nil {
        return sess.State(), err
    }
    return s.driveComputer(sess), nil
}

// Reset restarts a game.
func (s *Service) Reset(id string) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    return sess.Reset(), nil
}

// SetDifficulty changes the difficulty for the next computer move.
func (s *Service) SetDifficulty(id string, d ai.Difficulty) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    if err := sess.SetDifficulty(d); err != nil {
        return sess.State(), err
    }
    return sess.State(), nil
}

// SetMode switches mode, which restarts the game.
func (s *Service) SetMode(id string, m Mode) (Snapshot, error) {
    sess, err := s.session(id)
    if err != nil {
        return Snapshot{}, err
    }
    if err := sess.SetMode(m); err != nil {
        return sess.State(), err
    }
    return sess.State(), nil
}

// Stats returns the result tallies and the most recent finished games.
func (s *Service) Stats(ctx context.Context, recent int) (store.Stats, []store.Result, error) {
    stats, err := s.cfg.Recorder.Stats(ctx)
    if err != nil {
        return nil, nil, err
    }
    results, err := s.cfg.Recorder.Recent(ctx, recent)
    if err != nil {
        return nil, nil, err
    }
    return stats, results, nil
}

// driveComputer requests the computer move when it is the computer's turn.
func (s *Service) driveComputer(sess *Session) Snapshot {
    st := sess.State()
    if st.Mode != PlayerVsComputer || st.Outcome.Decided() || st.CurrentPlayer != Computer {
        return st
    }
    ch, err := sess.RequestComputerMove(s.ctx)
    if err != nil {
        s.cfg.Logger.Debug("computer move not requested", "id", st.ID, "err", err)
        return sess.State()
    }
    go func() {
        res := <-ch
        if res.Err != nil && !errors.Is(res.Err, ErrStale) && !errors.Is(res.Err, context.Canceled) {
            s.cfg.Logger.Warn("computer move failed", "id", st.ID, "err", res.Err)
        }
    }()
    return sess.State()
}

// observe records finished games and fans the new state out to subscribers.
func (s *Service) observe(ev Event) {
    snap := ev.Snapshot
    if (ev.Change == ChangeMove || ev.Change == ChangeComputerMove) && snap.Outcome.Decided() {
        s.record(snap)
    }
    s.broadcast(snap)
}

func (s *Service) record(snap Snapshot) {
    res := store.Result{
        SessionID:  snap.ID,
        Mode:       snap.Mode.String(),
        Winner:     snap.Outcome.Winner.String(),
        Moves:      snap.Move,
        FinishedAt: snap.Updated,
    }
    if snap.Mode == PlayerVsComputer {
        res.Difficulty = snap.Difficulty.String()
    }
    ctx, cancel := context.WithTimeout(s.ctx, recordTimeout)
    defer cancel()
    if err := s.cfg.Recorder.Record(ctx, res); err != nil {
        s.cfg.Logger.Error("failed to record result", "id", snap.ID, "err", err)
        return
    }
    s.cfg.Logger.Info("game finished", "id", snap.ID, "outcome", snap.StatusText(), "moves", snap.Move)
}

// broadcast delivers snap unless a newer version was already sent. Sends
// never block; a full subscriber is dropped.
func (s *Service) broadcast(snap Snapshot) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if snap.Version <= s.versions[snap.ID] {
        return
    }
    s.versions[snap.ID] = snap.Version
    for sub := range s.subs[snap.ID] {
        select {
        case sub.ch <- snap:
        default:
            sub.close()
            delete(s.subs[snap.ID], sub)
        }
    }
}

// Subscribe registers a subscriber for a game. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.sessions[id]; !ok {
        return nil, nil, ErrNotFound
    }
    set := s.subs[id]
    if set == nil {
        set = make(map[*subscriber]struct{})
        s.subs[id] = set
    }
    sub := &subscriber{ch: make(chan Snapshot, 4)}
    set[sub] = struct{}{}

    unsubOnce := &sync.Once{}
    unsub := func() {
        unsubOnce.Do(func() {
            s.mu.Lock()
            if set, ok := s.subs[id]; ok {
                delete(set, sub)
            }
            s.mu.Unlock()
            sub.close()
        })
    }
    go func() {
        <-ctx.Done()
        unsub()
    }()
    return sub.ch, unsub, nil
}

// Close cancels all outstanding computer moves.
func (s *Service) Close() {
    s.cancel()
    s.mu.Lock()
    sessions := make([]*Session, 0, len(s.sessions))
    for _, sess := range s.sessions {
        sessions = append(sessions, sess)
    }
    s.mu.Unlock()
    for _, sess := range sessions {
        sess.Close()
    }
}

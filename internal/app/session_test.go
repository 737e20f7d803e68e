package app

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

func newPvP(t *testing.T) *Session {
    t.Helper()
    return NewSession("pvp", SessionOptions{Mode: PlayerVsPlayer, Difficulty: ai.Medium, DefaultDifficulty: ai.Medium})
}

func newPvC(t *testing.T, d ai.Difficulty, delay time.Duration) *Session {
    t.Helper()
    return NewSession("pvc", SessionOptions{
        Mode:              PlayerVsComputer,
        Difficulty:        d,
        DefaultDifficulty: ai.Medium,
        Delay:             delay,
        Policy:            ai.NewPolicy(nil),
    })
}

func playAll(t *testing.T, s *Session, moves ...int) {
    t.Helper()
    for _, m := range moves {
        _, err := s.ApplyHumanMove(m)
        require.NoError(t, err, "move %d", m)
    }
}

func waitResult(t *testing.T, ch <-chan MoveResult) MoveResult {
    t.Helper()
    select {
    case res := <-ch:
        return res
    case <-time.After(2 * time.Second):
        t.Fatalf("timed out waiting for computer move")
    }
    return MoveResult{}
}

func TestNewSessionInitialState(t *testing.T) {
    st := newPvC(t, ai.Hard, 0).State()
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.X, st.CurrentPlayer)
    assert.Equal(t, domain.InProgress, st.Outcome.Status)
    assert.Equal(t, 0, st.Move)
    assert.Len(t, st.History, 1)
    assert.False(t, st.ComputerThinking())
    assert.Equal(t, "Next player: X", st.StatusText())
}

func TestPvPAlternatesAndFinishes(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 0, 3, 1, 4)
    st := s.State()
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.X, st.CurrentPlayer)

    out, err := s.ApplyHumanMove(2)
    require.NoError(t, err)
    assert.Equal(t, domain.Win, out.Status)
    assert.Equal(t, domain.X, out.Winner)
    assert.Equal(t, domain.Line{0, 1, 2}, out.Line)

    st = s.State()
    assert.Equal(t, GameOver, st.State)
    assert.Equal(t, "Player X wins!", st.StatusText())
    assert.Len(t, st.History, 6)

    _, err = s.ApplyHumanMove(8)
    assert.ErrorIs(t, err, domain.ErrIllegalMove)
}

func TestIllegalMoveLeavesStateUnchanged(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 4)
    before := s.State()

    _, err := s.ApplyHumanMove(4)
    assert.ErrorIs(t, err, domain.ErrOccupied)
    _, err = s.ApplyHumanMove(9)
    assert.ErrorIs(t, err, domain.ErrOutOfBounds)

    after := s.State()
    assert.Equal(t, before.Board, after.Board)
    assert.Equal(t, before.Generation, after.Generation)
}

func TestComputerThinkingGuards(t *testing.T) {
    s := newPvC(t, ai.Hard, time.Hour)
    playAll(t, s, 4)
    assert.Equal(t, ComputerThinking, s.State().State)
    assert.Equal(t, "Computer is thinking...", s.State().StatusText())

    _, err := s.ApplyHumanMove(0)
    assert.ErrorIs(t, err, ErrInvalidTransition)
    _, err = s.JumpToMove(0)
    assert.ErrorIs(t, err, ErrInvalidTransition)
    assert.ErrorIs(t, s.SetDifficulty(ai.Easy), ErrInvalidTransition)
    assert.ErrorIs(t, s.SetMode(PlayerVsPlayer), ErrInvalidTransition)

    ch, err := s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    _, err = s.RequestComputerMove(context.Background())
    assert.ErrorIs(t, err, ErrInvalidTransition, "second request while pending")

    s.Reset()
    res := waitResult(t, ch)
    assert.ErrorIs(t, res.Err, ErrStale)
    assert.Equal(t, domain.Board{}, s.State().Board)
}

func TestComputerMoveApplied(t *testing.T) {
    s := newPvC(t, ai.Hard, 0)
    playAll(t, s, 4)
    ch, err := s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    res := waitResult(t, ch)
    require.NoError(t, res.Err)
    assert.Equal(t, 0, res.Index)
    assert.Equal(t, domain.InProgress, res.Outcome.Status)

    st := s.State()
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.O, st.Board[0])
    assert.Equal(t, 2, st.Move)
    assert.Len(t, st.History, 3)
}

func TestComputerMoveCancelledByContext(t *testing.T) {
    s := newPvC(t, ai.Hard, time.Hour)
    playAll(t, s, 4)
    ctx, cancel := context.WithCancel(context.Background())
    ch, err := s.RequestComputerMove(ctx)
    require.NoError(t, err)
    cancel()
    res := waitResult(t, ch)
    assert.ErrorIs(t, res.Err, context.Canceled)
    assert.Equal(t, ComputerThinking, s.State().State)
    assert.Equal(t, 1, s.State().Move)

    // the move can be requested again
    ch, err = s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    s.Close()
    res = waitResult(t, ch)
    assert.Error(t, res.Err)
}

func TestRequestComputerMoveRejected(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 4)
    _, err := s.RequestComputerMove(context.Background())
    assert.ErrorIs(t, err, ErrInvalidTransition)

    c := newPvC(t, ai.Hard, 0)
    _, err = c.RequestComputerMove(context.Background())
    assert.ErrorIs(t, err, ErrInvalidTransition, "human to move")
}

func TestHardComputerNeverLosesSession(t *testing.T) {
    // X keeps taking the lowest free cell
    s := newPvC(t, ai.Hard, 0)
    for !s.State().Outcome.Decided() {
        st := s.State()
        _, err := s.ApplyHumanMove(domain.EmptyIndices(st.Board)[0])
        require.NoError(t, err)
        if s.State().Outcome.Decided() {
            break
        }
        ch, err := s.RequestComputerMove(context.Background())
        require.NoError(t, err)
        require.NoError(t, waitResult(t, ch).Err)
    }
    out := s.State().Outcome
    assert.False(t, out.Status == domain.Win && out.Winner == domain.X)
    assert.Equal(t, GameOver, s.State().State)
}

func TestJumpToStartOfFinishedGame(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 0, 3, 1, 4, 2)
    require.Equal(t, GameOver, s.State().State)

    out, err := s.JumpToMove(0)
    require.NoError(t, err)
    assert.Equal(t, domain.InProgress, out.Status)
    st := s.State()
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.X, st.CurrentPlayer)
    assert.Len(t, st.History, 6, "jump keeps the timeline")

    out, err = s.JumpToMove(5)
    require.NoError(t, err)
    assert.Equal(t, domain.Win, out.Status)
    assert.Equal(t, GameOver, s.State().State)
}

func TestMoveAfterJumpTruncates(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 0, 3, 1, 4)
    _, err := s.JumpToMove(1)
    require.NoError(t, err)
    assert.Equal(t, domain.O, s.State().CurrentPlayer)

    playAll(t, s, 8)
    st := s.State()
    assert.Len(t, st.History, 3)
    assert.Equal(t, 2, st.Move)
    assert.Equal(t, domain.O, st.Board[8])
    assert.Equal(t, domain.Empty, st.Board[3])

    for i := 1; i < len(st.History); i++ {
        diff := 0
        for c := range st.History[i] {
            if st.History[i][c] != st.History[i-1][c] {
                assert.Equal(t, domain.Empty, st.History[i-1][c])
                diff++
            }
        }
        assert.Equal(t, 1, diff)
    }
}

func TestJumpOutOfRange(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 4)
    before := s.State()
    _, err := s.JumpToMove(5)
    assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
    assert.Equal(t, before.Move, s.State().Move)

    _, err = s.JumpToMove(0)
    require.NoError(t, err)
    _, err = s.Undo()
    assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
}

func TestJumpOntoComputerTurn(t *testing.T) {
    s := newPvC(t, ai.Hard, 0)
    playAll(t, s, 4)
    ch, err := s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    require.NoError(t, waitResult(t, ch).Err)

    _, err = s.Undo()
    require.NoError(t, err)
    st := s.State()
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.O, st.CurrentPlayer)

    _, err = s.ApplyHumanMove(8)
    assert.ErrorIs(t, err, ErrInvalidTransition)

    ch, err = s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    res := waitResult(t, ch)
    require.NoError(t, res.Err)
    assert.Len(t, s.History(), 3)
}

func TestResetRestoresDefaults(t *testing.T) {
    s := newPvC(t, ai.Hard, 0)
    playAll(t, s, 4)
    st := s.Reset()
    assert.Equal(t, ai.Medium, st.Difficulty)
    assert.Equal(t, PlayerVsComputer, st.Mode)
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Len(t, st.History, 1)
}

func TestSetModeResets(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 4, 0)
    require.NoError(t, s.SetMode(PlayerVsComputer))
    st := s.State()
    assert.Equal(t, PlayerVsComputer, st.Mode)
    assert.Equal(t, domain.Board{}, st.Board)

    gen := st.Generation
    require.NoError(t, s.SetMode(PlayerVsComputer))
    assert.Equal(t, gen, s.State().Generation, "same mode is a no-op")
}

func TestSetDifficulty(t *testing.T) {
    s := newPvC(t, ai.Easy, 0)
    require.NoError(t, s.SetDifficulty(ai.Hard))
    assert.Equal(t, ai.Hard, s.State().Difficulty)
    assert.Error(t, s.SetDifficulty(ai.Difficulty(42)))
}

func TestObserverSeesOrderedVersions(t *testing.T) {
    var mu sync.Mutex
    var events []Event
    s := NewSession("obs", SessionOptions{
        Mode:       PlayerVsComputer,
        Difficulty: ai.Hard,
        Observer: func(ev Event) {
            mu.Lock()
            events = append(events, ev)
            mu.Unlock()
        },
    })
    playAll(t, s, 4)
    ch, err := s.RequestComputerMove(context.Background())
    require.NoError(t, err)
    require.NoError(t, waitResult(t, ch).Err)
    s.Reset()

    mu.Lock()
    defer mu.Unlock()
    require.Len(t, events, 4)
    changes := map[Change]bool{}
    for _, ev := range events {
        changes[ev.Change] = true
    }
    assert.True(t, changes[ChangeMove])
    assert.True(t, changes[ChangeThinking])
    assert.True(t, changes[ChangeComputerMove])
    assert.Equal(t, ChangeReset, events[3].Change)
    seen := map[uint64]bool{}
    for _, ev := range events {
        assert.False(t, seen[ev.Snapshot.Version])
        seen[ev.Snapshot.Version] = true
    }
}

func TestParseMode(t *testing.T) {
    for _, m := range []Mode{PlayerVsComputer, PlayerVsPlayer} {
        got, err := ParseMode(m.String())
        require.NoError(t, err)
        assert.Equal(t, m, got)
    }
    got, err := ParseMode("pvp")
    require.NoError(t, err)
    assert.Equal(t, PlayerVsPlayer, got)
    _, err = ParseMode("solo")
    assert.True(t, err != nil && !errors.Is(err, ErrInvalidTransition))
}

// blockingRand parks the first draw until released.
type blockingRand struct {
    entered chan struct{}
    release chan struct{}
    once    sync.Once
}

func (r *blockingRand) IntN(n int) int {
    r.once.Do(func() { close(r.entered) })
    <-r.release
    return 0
}

func (r *blockingRand) Float64() float64 { return 0 }

func TestComputerMoveStaleAfterSearch(t *testing.T) {
    rng := &blockingRand{entered: make(chan struct{}), release: make(chan struct{})}
    s := NewSession("stale", SessionOptions{
        Mode:              PlayerVsComputer,
        Difficulty:        ai.Easy,
        DefaultDifficulty: ai.Easy,
        Policy:            ai.NewPolicy(rng),
    })
    playAll(t, s, 4)
    ch, err := s.RequestComputerMove(context.Background())
    require.NoError(t, err)

    select {
    case <-rng.entered:
    case <-time.After(2 * time.Second):
        t.Fatalf("move selection never started")
    }
    s.Reset()
    playAll(t, s, 8)
    close(rng.release)

    res := waitResult(t, ch)
    assert.ErrorIs(t, res.Err, ErrStale)
    assert.Equal(t, -1, res.Index)

    st := s.State()
    var want domain.Board
    want[8] = domain.X
    assert.Equal(t, want, st.Board)
    assert.Equal(t, 1, st.Move)
    assert.Equal(t, ComputerThinking, st.State)
}

func TestConcurrentUndoStepsBackOnceEach(t *testing.T) {
    s := newPvP(t)
    playAll(t, s, 0, 4, 8, 2)

    var wg sync.WaitGroup
    errs := make(chan error, 4)
    for i := 0; i < 4; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := s.Undo()
            errs <- err
        }()
    }
    wg.Wait()
    close(errs)
    for err := range errs {
        assert.NoError(t, err)
    }
    assert.Equal(t, 0, s.State().Move)
    assert.Len(t, s.State().History, 5)

    _, err := s.Undo()
    assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
}

package app

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
    "github.com/jaminalder/tictactoe-engine/internal/store"
)

func newTestService(t *testing.T, delay time.Duration) (*Service, *store.MemoryStore) {
    t.Helper()
    rec := store.NewMemoryStore()
    s := NewServiceWithConfig(Config{
        DefaultDifficulty: ai.Medium,
        ComputerDelay:     delay,
        Recorder:          rec,
        Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
    })
    t.Cleanup(s.Close)
    return s, rec
}

func TestCreateAndGet(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, err := s.CreateGame(PlayerVsComputer, ai.Hard)
    require.NoError(t, err)
    require.NotEmpty(t, gs.ID)
    assert.Equal(t, domain.X, gs.CurrentPlayer)
    assert.Equal(t, ai.Hard, gs.Difficulty)
    assert.False(t, gs.Created.IsZero() || gs.Updated.IsZero())

    got, ok := s.Get(gs.ID)
    require.True(t, ok)
    assert.Equal(t, gs.ID, got.ID)

    _, ok = s.Get("missing")
    assert.False(t, ok)

    _, err = s.CreateGame(PlayerVsPlayer, ai.Difficulty(9))
    assert.Error(t, err)
}

func TestUnknownGame(t *testing.T) {
    s, _ := newTestService(t, 0)
    _, err := s.Play("nope", 0)
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = s.Jump("nope", 0)
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = s.RequestComputerMove("nope")
    assert.ErrorIs(t, err, ErrNotFound)
    _, _, err = s.Subscribe(context.Background(), "nope")
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = s.History("nope")
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlayPvPEnforcesTurnOrder(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsPlayer, ai.Medium)

    st, err := s.Play(gs.ID, 0)
    require.NoError(t, err)
    assert.Equal(t, domain.X, st.Board[0])
    assert.Equal(t, domain.O, st.CurrentPlayer)
    assert.Equal(t, 1, st.Move)

    st, err = s.Play(gs.ID, 0)
    assert.True(t, errors.Is(err, domain.ErrOccupied))
    assert.Equal(t, 1, st.Move)
}

func TestPlayPvCComputerReplies(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsComputer, ai.Hard)

    _, err := s.Play(gs.ID, 4)
    require.NoError(t, err)
    require.Eventually(t, func() bool {
        st, _ := s.Get(gs.ID)
        return st.Move == 2 && st.State == AwaitingHumanMove
    }, 2*time.Second, 5*time.Millisecond)

    st, _ := s.Get(gs.ID)
    assert.Equal(t, domain.O, st.Board[0])
    h, err := s.History(gs.ID)
    require.NoError(t, err)
    assert.Len(t, h, 3)
}

func TestUndoInPvCReplaysComputer(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsComputer, ai.Hard)
    _, err := s.Play(gs.ID, 4)
    require.NoError(t, err)
    require.Eventually(t, func() bool {
        st, _ := s.Get(gs.ID)
        return st.Move == 2
    }, 2*time.Second, 5*time.Millisecond)

    _, err = s.Undo(gs.ID)
    require.NoError(t, err)
    // the computer is to move again and is driven automatically
    require.Eventually(t, func() bool {
        st, _ := s.Get(gs.ID)
        return st.Move == 2 && st.State == AwaitingHumanMove
    }, 2*time.Second, 5*time.Millisecond)
}

func TestResetDiscardsPendingComputerMove(t *testing.T) {
    s, _ := newTestService(t, time.Hour)
    gs, _ := s.CreateGame(PlayerVsComputer, ai.Hard)
    st, err := s.Play(gs.ID, 4)
    require.NoError(t, err)
    assert.True(t, st.ComputerThinking())

    _, err = s.Jump(gs.ID, 0)
    assert.ErrorIs(t, err, ErrInvalidTransition)
    _, err = s.SetDifficulty(gs.ID, ai.Easy)
    assert.ErrorIs(t, err, ErrInvalidTransition)

    st, err = s.Reset(gs.ID)
    require.NoError(t, err)
    assert.Equal(t, AwaitingHumanMove, st.State)
    assert.Equal(t, domain.Board{}, st.Board)
    assert.Equal(t, ai.Medium, st.Difficulty)
}

func TestSetModeAndDifficulty(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsComputer, ai.Easy)
    st, err := s.SetDifficulty(gs.ID, ai.Hard)
    require.NoError(t, err)
    assert.Equal(t, ai.Hard, st.Difficulty)

    st, err = s.SetMode(gs.ID, PlayerVsPlayer)
    require.NoError(t, err)
    assert.Equal(t, PlayerVsPlayer, st.Mode)

    // O is human now
    _, err = s.Play(gs.ID, 4)
    require.NoError(t, err)
    st, err = s.Play(gs.ID, 0)
    require.NoError(t, err)
    assert.Equal(t, domain.O, st.Board[0])
}

func TestFinishedGamesAreRecorded(t *testing.T) {
    s, rec := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsPlayer, ai.Medium)
    for _, m := range []int{0, 3, 1, 4, 2} {
        _, err := s.Play(gs.ID, m)
        require.NoError(t, err)
    }
    // jumping around a finished game does not record again
    _, err := s.Jump(gs.ID, 0)
    require.NoError(t, err)
    _, err = s.Jump(gs.ID, 5)
    require.NoError(t, err)

    stats, err := rec.Stats(context.Background())
    require.NoError(t, err)
    assert.Equal(t, store.Tally{XWins: 1}, stats["player-vs-player"])

    stats, recent, err := s.Stats(context.Background(), 10)
    require.NoError(t, err)
    assert.Len(t, stats, 1)
    require.Len(t, recent, 1)
    assert.Equal(t, gs.ID, recent[0].SessionID)
    assert.Equal(t, 5, recent[0].Moves)
}

func TestComputerWinIsRecordedWithDifficulty(t *testing.T) {
    s, rec := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsComputer, ai.Hard)
    // X wanders along the edges and loses
    for !func() bool { st, _ := s.Get(gs.ID); return st.Outcome.Decided() }() {
        var st Snapshot
        require.Eventually(t, func() bool {
            st, _ = s.Get(gs.ID)
            return st.State != ComputerThinking
        }, 2*time.Second, 5*time.Millisecond)
        if st.Outcome.Decided() {
            break
        }
        _, err := s.Play(gs.ID, domain.EmptyIndices(st.Board)[0])
        require.NoError(t, err)
    }
    require.Eventually(t, func() bool {
        stats, _ := rec.Stats(context.Background())
        return stats["player-vs-computer/hard"].Total() == 1
    }, 2*time.Second, 5*time.Millisecond)
    stats, _ := rec.Stats(context.Background())
    assert.Zero(t, stats["player-vs-computer/hard"].XWins)
}

func TestSubscribeAndBroadcast(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsPlayer, ai.Medium)

    ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
    defer cancel()
    ch, unsub, err := s.Subscribe(ctx, gs.ID)
    require.NoError(t, err)
    defer unsub()

    // Trigger an update: X plays
    _, err = s.Play(gs.ID, 0)
    require.NoError(t, err)

    select {
    case snap, ok := <-ch:
        require.True(t, ok, "channel closed unexpectedly")
        assert.Equal(t, 1, snap.Move)
        assert.Equal(t, domain.X, snap.Board[0])
    case <-ctx.Done():
        t.Fatalf("timed out waiting for broadcast")
    }
}

func TestDropSlowSubscriber(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsPlayer, ai.Medium)

    // Slow subscriber: never read
    ctxSlow, cancelSlow := context.WithCancel(context.Background())
    defer cancelSlow()
    slowCh, _, err := s.Subscribe(ctxSlow, gs.ID)
    require.NoError(t, err)

    // Fast subscriber: will read
    ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
    defer cancelFast()
    fastCh, unsubFast, err := s.Subscribe(ctxFast, gs.ID)
    require.NoError(t, err)
    defer unsubFast()

    // More updates than the buffer holds; slow gets dropped, fast keeps up
    moves := []int{0, 1, 2, 4, 3, 5}
    for _, m := range moves {
        _, err := s.Play(gs.ID, m)
        require.NoError(t, err)
        select {
        case <-fastCh:
        case <-ctxFast.Done():
            t.Fatalf("fast subscriber did not receive updates in time")
        }
    }

    // Slow subscriber got the buffered updates and was then closed
    got := 0
    for range slowCh {
        got++
    }
    assert.Equal(t, cap(slowCh), got)
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
    s, _ := newTestService(t, 0)
    gs, _ := s.CreateGame(PlayerVsPlayer, ai.Medium)
    ctx, cancel := context.WithCancel(context.Background())
    ch, _, err := s.Subscribe(ctx, gs.ID)
    require.NoError(t, err)
    cancel()
    select {
    case _, ok := <-ch:
        assert.False(t, ok)
    case <-time.After(time.Second):
        t.Fatalf("channel not closed after cancel")
    }
}

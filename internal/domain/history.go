package domain

import (
    "errors"
    "sort"
)

var (
    ErrIndexOutOfRange = errors.New("history index out of range")
    ErrNotSuccessor    = errors.New("board is not a one-move successor")
)

// History is a linear timeline of board snapshots. Index 0 is the empty
// board and index i is the board after move i. Operations return a new
// History and never alias the receiver's storage.
type History struct {
    snapshots []Board
}

// NewHistory returns a history holding only the empty board.
func NewHistory() History {
    return History{snapshots: []Board{{}}}
}

// Len returns the number of snapshots.
func (h History) Len() int { return len(h.snapshots) }

// Tip returns the most recent snapshot.
func (h History) Tip() Board {
    if len(h.snapshots) == 0 {
        return Board{}
    }
    return h.snapshots[len(h.snapshots)-1]
}

// Snapshots returns a copy of all snapshots in order.
func (h History) Snapshots() []Board {
    return append([]Board(nil), h.snapshots...)
}

// Append adds b after the tip.
func (h History) Append(b Board) (History, error) {
    if len(h.snapshots) == 0 {
        h = NewHistory()
    }
    return h.TruncateAndAppend(len(h.snapshots)-1, b)
}

// TruncateAndAppend keeps snapshots [0..at], drops the rest and appends b.
// b must differ from snapshot at in exactly one previously empty cell.
func (h History) TruncateAndAppend(at int, b Board) (History, error) {
    if at < 0 || at >= len(h.snapshots) {
        return h, ErrIndexOutOfRange
    }
    if !isSuccessor(h.snapshots[at], b) {
        return h, ErrNotSuccessor
    }
    out := make([]Board, at+2)
    copy(out, h.snapshots[:at+1])
    out[at+1] = b
    return History{snapshots: out}, nil
}

// Jump returns the snapshot at index. The caller derives turn and outcome.
func (h History) Jump(index int) (Board, error) {
    if index < 0 || index >= len(h.snapshots) {
        return Board{}, ErrIndexOutOfRange
    }
    return h.snapshots[index], nil
}

// IndexOf locates b in the history, or returns -1. Snapshot i holds exactly
// i marks, so the search bisects on the filled count.
func (h History) IndexOf(b Board) int {
    n := b.Filled()
    i := sort.Search(len(h.snapshots), func(i int) bool {
        return h.snapshots[i].Filled() >= n
    })
    if i < len(h.snapshots) && h.snapshots[i] == b {
        return i
    }
    return -1
}

func isSuccessor(prev, next Board) bool {
    diff := 0
    for i := range prev {
        if prev[i] == next[i] {
            continue
        }
        if prev[i] != Empty || next[i] == Empty {
            return false
        }
        diff++
    }
    return diff == 1
}

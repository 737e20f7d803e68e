package domain

import (
    "errors"
    "fmt"
)

// Cell represents a board cell state.
type Cell uint8

const (
    Empty Cell = iota
    X
    O
)

// String returns "X", "O" or "" for an empty cell.
func (c Cell) String() string {
    switch c {
    case X:
        return "X"
    case O:
        return "O"
    default:
        return ""
    }
}

// Opponent returns the other player. Empty has no opponent.
func (c Cell) Opponent() Cell {
    switch c {
    case X:
        return O
    case O:
        return X
    default:
        return Empty
    }
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// Line is one of the eight winning index triples.
type Line [3]int

// Lines in canonical order: rows, columns, diagonals.
var Lines = [8]Line{
    // rows
    {0, 1, 2}, {3, 4, 5}, {6, 7, 8},
    // cols
    {0, 3, 6}, {1, 4, 7}, {2, 5, 8},
    // diags
    {0, 4, 8}, {2, 4, 6},
}

// Status is the coarse state of a board.
type Status uint8

const (
    InProgress Status = iota
    Win
    Draw
)

func (s Status) String() string {
    switch s {
    case Win:
        return "win"
    case Draw:
        return "draw"
    default:
        return "in_progress"
    }
}

// Outcome is derived from board contents by Evaluate. Winner and Line are
// only meaningful when Status is Win.
type Outcome struct {
    Status Status
    Winner Cell
    Line   Line
}

// Decided reports whether the game is over.
func (o Outcome) Decided() bool { return o.Status != InProgress }

// Errors returned by domain operations. Every rejected move matches ErrIllegalMove.
var (
    ErrIllegalMove   = errors.New("illegal move")
    ErrOutOfBounds   = fmt.Errorf("%w: out of bounds", ErrIllegalMove)
    ErrOccupied      = fmt.Errorf("%w: cell occupied", ErrIllegalMove)
    ErrGameOver      = fmt.Errorf("%w: game over", ErrIllegalMove)
    ErrInvalidPlayer = fmt.Errorf("%w: invalid player", ErrIllegalMove)
)

// Apply returns a copy of b with p placed at idx.
func Apply(b Board, idx int, p Cell) (Board, error) {
    if p != X && p != O {
        return b, ErrInvalidPlayer
    }
    if Evaluate(b).Decided() {
        return b, ErrGameOver
    }
    if idx < 0 || idx > 8 {
        return b, ErrOutOfBounds
    }
    if b[idx] != Empty {
        return b, ErrOccupied
    }
    b[idx] = p
    return b, nil
}

// Evaluate checks the winning lines in canonical order and reports the first
// completed one, a draw on a full board, or InProgress.
func Evaluate(b Board) Outcome {
    for _, ln := range Lines {
        c := b[ln[0]]
        if c != Empty && b[ln[1]] == c && b[ln[2]] == c {
            return Outcome{Status: Win, Winner: c, Line: ln}
        }
    }
    if b.Full() {
        return Outcome{Status: Draw}
    }
    return Outcome{Status: InProgress}
}

// EmptyIndices lists the empty cells in ascending order.
func EmptyIndices(b Board) []int {
    out := make([]int, 0, 9)
    for i, c := range b {
        if c == Empty {
            out = append(out, i)
        }
    }
    return out
}

// Filled counts non-empty cells.
func (b Board) Filled() int {
    n := 0
    for _, c := range b {
        if c != Empty {
            n++
        }
    }
    return n
}

// Full reports whether no empty cell remains.
func (b Board) Full() bool { return b.Filled() == 9 }

// ToMove derives whose turn it is from the number of moves made. X always starts.
func (b Board) ToMove() Cell {
    if b.Filled()%2 == 0 {
        return X
    }
    return O
}

// String renders the board as three rows, '.' for empty cells.
func (b Board) String() string {
    buf := make([]byte, 0, 11)
    for i, c := range b {
        if i > 0 && i%3 == 0 {
            buf = append(buf, '/')
        }
        switch c {
        case X:
            buf = append(buf, 'X')
        case O:
            buf = append(buf, 'O')
        default:
            buf = append(buf, '.')
        }
    }
    return string(buf)
}

// ParseBoard is the inverse of Board.String. Separators are optional.
func ParseBoard(s string) (Board, error) {
    var b Board
    i := 0
    for _, r := range s {
        if r == '/' || r == ' ' {
            continue
        }
        if i >= 9 {
            return Board{}, fmt.Errorf("parse board %q: too many cells", s)
        }
        switch r {
        case 'X', 'x':
            b[i] = X
        case 'O', 'o':
            b[i] = O
        case '.', '_', '-':
            b[i] = Empty
        default:
            return Board{}, fmt.Errorf("parse board %q: unexpected %q", s, r)
        }
        i++
    }
    if i != 9 {
        return Board{}, fmt.Errorf("parse board %q: want 9 cells, got %d", s, i)
    }
    return b, nil
}

// Package ai selects moves for the computer player.
package ai

import (
    "errors"
    "math"

    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

// Maximizer is the player whose wins score positive. O minimizes.
const Maximizer = domain.X

// WinScore is the utility of an immediate win. Each ply before the win
// costs one point so faster wins and slower losses are preferred.
const WinScore = 10

var ErrNoLegalMoves = errors.New("no legal moves")

// utility scores a decided board depth plies below the searched node.
func utility(out domain.Outcome, depth int) int {
    switch {
    case out.Status != domain.Win:
        return 0
    case out.Winner == Maximizer:
        return WinScore - depth
    default:
        return depth - WinScore
    }
}

// Score runs a full minimax search from b with toMove on turn. depth is the
// number of plies already made since the root.
func Score(b domain.Board, toMove domain.Cell, depth int) int {
    out := domain.Evaluate(b)
    if out.Decided() {
        return utility(out, depth)
    }
    best := math.MinInt
    if toMove != Maximizer {
        best = math.MaxInt
    }
    for _, i := range domain.EmptyIndices(b) {
        child := b
        child[i] = toMove
        s := Score(child, toMove.Opponent(), depth+1)
        if toMove == Maximizer {
            best = max(best, s)
        } else {
            best = min(best, s)
        }
    }
    return best
}

// alphaBeta returns the same value as Score for any window containing it.
func alphaBeta(b domain.Board, toMove domain.Cell, depth, alpha, beta int) int {
    out := domain.Evaluate(b)
    if out.Decided() {
        return utility(out, depth)
    }
    if toMove == Maximizer {
        best := math.MinInt
        for _, i := range domain.EmptyIndices(b) {
            child := b
            child[i] = toMove
            best = max(best, alphaBeta(child, toMove.Opponent(), depth+1, alpha, beta))
            alpha = max(alpha, best)
            if alpha >= beta {
                break
            }
        }
        return best
    }
    best := math.MaxInt
    for _, i := range domain.EmptyIndices(b) {
        child := b
        child[i] = toMove
        best = min(best, alphaBeta(child, toMove.Opponent(), depth+1, alpha, beta))
        beta = min(beta, best)
        if alpha >= beta {
            break
        }
    }
    return best
}

// MoveScore is the exact minimax value of playing Index.
type MoveScore struct {
    Index int
    Score int
}

// ScoreMoves scores every legal move for player in ascending index order.
// Each child is searched with a full window so the values are exact.
func ScoreMoves(b domain.Board, player domain.Cell) ([]MoveScore, error) {
    if domain.Evaluate(b).Decided() {
        return nil, ErrNoLegalMoves
    }
    empty := domain.EmptyIndices(b)
    out := make([]MoveScore, 0, len(empty))
    for _, i := range empty {
        child, err := domain.Apply(b, i, player)
        if err != nil {
            return nil, err
        }
        s := alphaBeta(child, player.Opponent(), 1, math.MinInt, math.MaxInt)
        out = append(out, MoveScore{Index: i, Score: s})
    }
    return out, nil
}

// BestMove returns the optimal index for player. Ties go to the lowest index.
func BestMove(b domain.Board, player domain.Cell) (int, error) {
    scores, err := ScoreMoves(b, player)
    if err != nil {
        return -1, err
    }
    best := scores[0]
    for _, ms := range scores[1:] {
        if player == Maximizer && ms.Score > best.Score {
            best = ms
        } else if player != Maximizer && ms.Score < best.Score {
            best = ms
        }
    }
    return best.Index, nil
}

package chessengine

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-wargame/internal/engine/uci"
	"go.uber.org/zap"
)

// choose returns the computer's move in UCI notation, or "" when none is legal.
func (e *Engine) choose() string {
	candidates := e.legalMoves()
	if len(candidates) == 0 {
		return ""
	}
	switch e.heuristic {
	case HeuristicRandom:
		return candidates[e.rand.Intn(len(candidates))]
	case HeuristicUCI:
		if mv, err := e.searchUCI(); err == nil && contains(candidates, mv) {
			return mv
		} else if err != nil {
			e.logger.Warn("chess_engine_uci_fallback", zap.Error(err))
		}
	}
	return e.bestByMaterial(candidates)
}

func (e *Engine) legalMoves() []string {
	moves := e.game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, strings.ToLower(moves[i].String()))
	}
	return out
}

// bestByMaterial picks the move capturing the most material, promotions counting as
// a queen. Ties are broken at random.
func (e *Engine) bestByMaterial(candidates []string) string {
	board := e.game.Position().Board()
	best := -1
	var pool []string
	for _, mv := range candidates {
		score := 0
		if len(mv) >= 4 {
			if sq, ok := parseSquare(mv[2:4]); ok {
				if piece := board.Piece(sq); piece != nchess.NoPiece {
					score += pieceValues[piece.Type()]
				}
			}
		}
		if len(mv) == 5 {
			score += pieceValues[nchess.Queen]
		}
		switch {
		case score > best:
			best = score
			pool = []string{mv}
		case score == best:
			pool = append(pool, mv)
		}
	}
	return pool[e.rand.Intn(len(pool))]
}

func (e *Engine) searchUCI() (string, error) {
	ctx, cancel := e.searchContext()
	defer cancel()
	if e.uci == nil {
		s, err := uci.NewSession(ctx, e.stockfish, uci.Options{}, e.logger)
		if err != nil {
			return "", err
		}
		e.uci = s
	}
	return e.uci.BestMove(ctx, e.history, uci.Limits{Depth: e.depth(), MoveTimeMillis: e.maxSeconds * 1000})
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 {
		return nchess.NoSquare, false
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file >= boardSize || rank < 0 || rank >= boardSize {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank)), true
}

func contains(list []string, s string) bool {
	s = strings.ToLower(s)
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package chessengine is the reference Engine: orthodox chess between the white and
// black factions, with a configurable computer opponent.
package chessengine

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/engine"
	"github.com/park285/cheese-wargame/internal/engine/uci"
	"go.uber.org/zap"
)

const (
	HeuristicRandom   = "random"
	HeuristicMaterial = "material"
	HeuristicUCI      = "uci"

	boardSize        = 8
	defaultMaxMoves  = 150
	defaultMaxDepth  = 6
	defaultMaxSecond = 5
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

type Config struct {
	Heuristic     string
	MaxDepth      int
	MaxSeconds    int
	MaxMoves      int
	AutoDepth     bool
	StockfishPath string
	Seed          int64
	Logger        *zap.Logger
}

// Engine adapts a corentings/chess game to the engine.Engine capability.
type Engine struct {
	game    *nchess.Game
	history []string // UCI moves, for the uci heuristic

	heuristic  string
	maxDepth   int
	maxSeconds int
	maxMoves   int
	autoDepth  bool

	stockfish string
	uci       *uci.Session
	rand      *rand.Rand
	logger    *zap.Logger
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Tunable = (*Engine)(nil)
)

func New(cfg Config) (*Engine, error) {
	e := &Engine{
		game:       nchess.NewGame(),
		heuristic:  HeuristicMaterial,
		maxDepth:   defaultMaxDepth,
		maxSeconds: defaultMaxSecond,
		maxMoves:   defaultMaxMoves,
		autoDepth:  cfg.AutoDepth,
		stockfish:  strings.TrimSpace(cfg.StockfishPath),
		logger:     cfg.Logger,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if h := strings.TrimSpace(cfg.Heuristic); h != "" {
		if err := e.setHeuristic(h); err != nil {
			return nil, err
		}
	}
	if cfg.MaxDepth > 0 {
		e.maxDepth = cfg.MaxDepth
	}
	if cfg.MaxSeconds > 0 {
		e.maxSeconds = cfg.MaxSeconds
	}
	if cfg.MaxMoves > 0 {
		e.maxMoves = cfg.MaxMoves
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rand = rand.New(rand.NewSource(seed))
	return e, nil
}

// Factory returns an engine.Factory building a fresh Engine per session.
func Factory(cfg Config) engine.Factory {
	return func() (engine.Engine, error) {
		return New(cfg)
	}
}

func (e *Engine) PlayTurn(m domain.Move) (string, bool) {
	if _, over := e.HasWinner(); over {
		return "", false
	}
	if m.SelfDestruct() || !onBoard(m.From) || !onBoard(m.To) {
		return "", false
	}
	move := squareOf(m.From).String() + squareOf(m.To).String()
	if err := e.push(move); err != nil {
		// promotion defaults to a queen
		if !e.promotes(m) || e.push(move+"q") != nil {
			return "", false
		}
	}
	return e.describeLast(), true
}

func (e *Engine) ComputerPlayTurn() (string, *domain.Move) {
	if text, over := e.HasWinner(); over {
		return text, nil
	}
	move := e.choose()
	if move == "" {
		return "No move available", nil
	}
	if err := e.push(move); err != nil {
		e.logger.Warn("chess_engine_move_rejected", zap.String("move", move), zap.Error(err))
		return "Computer failed to move", nil
	}
	text := e.describeLast()
	if mv, ok := e.lastMove(); ok {
		return text, &mv
	}
	return text, nil
}

func (e *Engine) HasWinner() (string, bool) {
	n := e.MovesPlayed()
	switch e.game.Outcome() {
	case nchess.WhiteWon:
		return fmt.Sprintf("White wins in %d moves!", n), true
	case nchess.BlackWon:
		return fmt.Sprintf("Black wins in %d moves!", n), true
	case nchess.Draw:
		return fmt.Sprintf("Draw after %d moves.", n), true
	}
	if e.maxMoves > 0 && n >= e.maxMoves {
		return fmt.Sprintf("Draw: move limit of %d reached.", e.maxMoves), true
	}
	return "", false
}

func (e *Engine) MovesPlayed() int { return len(e.game.Moves()) }

func (e *Engine) Board() domain.Board {
	b := domain.Board{Rows: boardSize, Cols: boardSize, Cells: make([]domain.Cell, boardSize*boardSize), Moves: e.MovesPlayed()}
	for sq, piece := range e.game.Position().Board().SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		row := 7 - int(sq.Rank())
		col := int(sq.File())
		b.Cells[row*boardSize+col] = domain.Cell{Label: pieceLabel(piece), Faction: factionOf(piece.Color())}
	}
	if mv, ok := e.lastMove(); ok {
		b = b.WithHighlight(&mv)
	}
	return b
}

func (e *Engine) Info() string {
	turn := factionTitle(e.game.Position().Turn())
	return fmt.Sprintf("%s to move | moves %d/%d | heuristic %s | depth %d | %ds",
		turn, e.MovesPlayed(), e.maxMoves, e.heuristic, e.depth(), e.maxSeconds)
}

// DisplayCoord renders c in algebraic form, e.g. (6,4) → "e2".
func (e *Engine) DisplayCoord(c domain.Coordinate) string {
	if !onBoard(c) {
		return c.String()
	}
	return squareOf(c).String()
}

func (e *Engine) SetOption(name, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "heuristic":
		return e.setHeuristic(value)
	case "max_depth":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid max_depth %q", value)
		}
		e.maxDepth = n
	case "max_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid max_seconds %q", value)
		}
		e.maxSeconds = n
	case "auto_depth":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid auto_depth %q", value)
		}
		e.autoDepth = b
	default:
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedOption, name)
	}
	return nil
}

// Close stops the UCI subprocess, if one was started.
func (e *Engine) Close() error {
	if e.uci == nil {
		return nil
	}
	err := e.uci.Close()
	e.uci = nil
	return err
}

func (e *Engine) setHeuristic(h string) error {
	switch strings.ToLower(h) {
	case HeuristicRandom, HeuristicMaterial:
		e.heuristic = strings.ToLower(h)
	case HeuristicUCI:
		if e.stockfish == "" {
			return fmt.Errorf("heuristic uci requires STOCKFISH_PATH")
		}
		e.heuristic = HeuristicUCI
	default:
		return fmt.Errorf("unknown heuristic %q", h)
	}
	return nil
}

func (e *Engine) push(move string) error {
	if err := e.game.PushNotationMove(move, nchess.UCINotation{}, nil); err != nil {
		return err
	}
	e.history = append(e.history, move)
	return nil
}

func (e *Engine) promotes(m domain.Move) bool {
	piece := e.game.Position().Board().Piece(squareOf(m.From))
	if piece == nchess.NoPiece || piece.Type() != nchess.Pawn {
		return false
	}
	return m.To.Row == 0 || m.To.Row == boardSize-1
}

func (e *Engine) lastMove() (domain.Move, bool) {
	moves := e.game.Moves()
	if len(moves) == 0 {
		return domain.Move{}, false
	}
	last := moves[len(moves)-1]
	return domain.Move{From: coordOf(last.S1()), To: coordOf(last.S2())}, true
}

func (e *Engine) describeLast() string {
	moves := e.game.Moves()
	positions := e.game.Positions()
	n := len(moves)
	if n == 0 || len(positions) < n {
		return ""
	}
	before := positions[n-1]
	san := nchess.AlgebraicNotation{}.Encode(before, moves[n-1])
	return fmt.Sprintf("%d. %s played %s", n, factionTitle(before.Turn()), san)
}

func (e *Engine) depth() int {
	if !e.autoDepth {
		return e.maxDepth
	}
	// fewer legal moves → search deeper
	switch n := len(e.game.ValidMoves()); {
	case n > 30:
		return max(1, e.maxDepth-2)
	case n < 10:
		return e.maxDepth + 2
	default:
		return e.maxDepth
	}
}

func squareOf(c domain.Coordinate) nchess.Square {
	return nchess.NewSquare(nchess.File(c.Col), nchess.Rank(7-c.Row))
}

func coordOf(sq nchess.Square) domain.Coordinate {
	return domain.Coordinate{Row: 7 - int(sq.Rank()), Col: int(sq.File())}
}

func onBoard(c domain.Coordinate) bool {
	return c.Valid() && c.Row < boardSize && c.Col < boardSize
}

func factionOf(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func factionTitle(c nchess.Color) string {
	if c == nchess.White {
		return "White"
	}
	return "Black"
}

func pieceLabel(p nchess.Piece) string {
	var s string
	switch p.Type() {
	case nchess.King:
		s = "K"
	case nchess.Queen:
		s = "Q"
	case nchess.Rook:
		s = "R"
	case nchess.Bishop:
		s = "B"
	case nchess.Knight:
		s = "N"
	case nchess.Pawn:
		s = "P"
	}
	if p.Color() == nchess.Black {
		s = strings.ToLower(s)
	}
	return s
}

func (e *Engine) searchContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(e.maxSeconds+5)*time.Second)
}

package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const handshakeTimeout = 4 * time.Second

var (
	ErrNoBestMove   = errors.New("engine returned no bestmove")
	ErrEngineExited = errors.New("engine process exited")
)

// Options are applied once with setoption after the uci handshake.
type Options struct {
	Threads    int
	HashMB     int
	SkillLevel int
}

func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB <= 0 {
		o.HashMB = 16
	}
	if o.SkillLevel < 1 || o.SkillLevel > 20 {
		o.SkillLevel = 20
	}
	return o
}

// Limits bound one "go" search. At least one field must be set.
type Limits struct {
	Depth          int
	MoveTimeMillis int
}

// Session drives one UCI engine subprocess over its stdio pipes.
type Session struct {
	proc   *exec.Cmd
	in     io.WriteCloser
	lines  chan string // closed when stdout hits EOF
	done   chan struct{}
	logger *zap.Logger

	writeMu   sync.Mutex
	searchMu  sync.Mutex
	closeOnce sync.Once
}

func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	binaryPath = strings.TrimSpace(binaryPath)
	if binaryPath == "" {
		return nil, errors.New("uci binary path required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// ctx는 핸드셰이크에만 적용. 프로세스 종료는 Close 담당
	proc := exec.Command(binaryPath)
	in, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	out, err := proc.StdoutPipe()
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("start %s: %w", binaryPath, err)
	}

	s := &Session{proc: proc, in: in, lines: make(chan string, 64), done: make(chan struct{}), logger: logger}
	go s.pump(out)

	if err := s.handshake(ctx, opt.withDefaults()); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Debug("uci_session_ready", zap.String("binary", binaryPath), zap.Int("pid", proc.Process.Pid))
	return s, nil
}

// pump is the only reader of stdout.
func (s *Session) pump(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case s.lines <- strings.TrimSpace(sc.Text()):
		case <-s.done:
			return
		}
	}
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, c := range optionCommands(opt) {
		if err := s.send(c); err != nil {
			return fmt.Errorf("setoption: %w", err)
		}
	}
	return s.sync(ctx)
}

// sync sends isready and blocks until readyok.
func (s *Session) sync(ctx context.Context) error {
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// BestMove searches the position reached from startpos by moves, given in UCI
// long algebraic notation.
func (s *Session) BestMove(ctx context.Context, moves []string, l Limits) (string, error) {
	goCmd, err := buildGoCommand(l)
	if err != nil {
		return "", err
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	if err := s.send(buildPositionCommand(moves) + goCmd); err != nil {
		return "", fmt.Errorf("send search: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, computeSearchTimeout(l))
	defer cancel()
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			s.logger.Warn("uci_search_aborted",
				zap.Int("ply", len(moves)),
				zap.String("go", strings.TrimSpace(goCmd)),
				zap.Error(err),
			)
			// 다음 탐색이 이전 bestmove를 읽지 않도록 정리
			s.drainSearch()
			return "", fmt.Errorf("await bestmove: %w", err)
		}
		best, ok := parseBestMove(line)
		if !ok {
			continue
		}
		if best == "" || best == "(none)" {
			return "", ErrNoBestMove
		}
		return best, nil
	}
}

// drainSearch stops a running search and discards output up to its bestmove.
func (s *Session) drainSearch() {
	if err := s.send("stop\n"); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return
		}
		if _, ok := parseBestMove(line); ok {
			return
		}
	}
}

// NewGame clears the engine's hash and history between games.
func (s *Session) NewGame(ctx context.Context) error {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	return s.sync(ctx)
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_, _ = io.WriteString(s.in, "quit\n")
		_ = s.in.Close()
		s.writeMu.Unlock()

		if s.proc.Process != nil {
			_ = s.proc.Process.Kill()
		}
		_ = s.proc.Wait()
	})
	return nil
}

func (s *Session) send(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.in, msg)
	return err
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineExited
		}
		return line, nil
	}
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if line == token || strings.HasPrefix(line, token+" ") {
			return nil
		}
	}
}

func optionCommands(opt Options) []string {
	set := func(name string, v int) string {
		return "setoption name " + name + " value " + strconv.Itoa(v) + "\n"
	}
	return []string{
		set("Threads", opt.Threads),
		set("Hash", opt.HashMB),
		set("Skill Level", opt.SkillLevel),
	}
}

func buildPositionCommand(moves []string) string {
	if len(moves) == 0 {
		return "position startpos\n"
	}
	return "position startpos moves " + strings.Join(moves, " ") + "\n"
}

func buildGoCommand(l Limits) (string, error) {
	if l.Depth <= 0 && l.MoveTimeMillis <= 0 {
		return "", errors.New("no search limits specified")
	}
	cmd := "go"
	if l.Depth > 0 {
		cmd += " depth " + strconv.Itoa(l.Depth)
	}
	if l.MoveTimeMillis > 0 {
		cmd += " movetime " + strconv.Itoa(l.MoveTimeMillis)
	}
	return cmd + "\n", nil
}

// computeSearchTimeout gives movetime searches 2s of slack and clamps depth
// searches to [6s, 20s] at 300ms per ply.
func computeSearchTimeout(l Limits) time.Duration {
	const (
		floor = 6 * time.Second
		ceil  = 20 * time.Second
	)
	switch {
	case l.MoveTimeMillis > 0:
		return time.Duration(l.MoveTimeMillis)*time.Millisecond + 2*time.Second
	case l.Depth > 0:
		return min(max(time.Duration(l.Depth)*300*time.Millisecond, floor), ceil)
	default:
		return floor
	}
}

// parseBestMove reports whether line is a bestmove reply and returns its move.
func parseBestMove(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "bestmove")
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", true
	}
	return fields[0], true
}

package render

import (
	"github.com/park285/cheese-wargame/internal/domain"
	"go.uber.org/zap"
)

// LogSink writes sink events to a zap logger. Boards are logged as ASCII at debug.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Board(b domain.Board) {
	if ce := s.logger.Check(zap.DebugLevel, "render_board"); ce != nil {
		ce.Write(zap.Int("moves", b.Moves), zap.String("board", Text(b)))
	}
}

func (s *LogSink) Stats(text string) { s.logger.Info("render_stats", zap.String("text", text)) }
func (s *LogSink) Info(text string)  { s.logger.Debug("render_info", zap.String("text", text)) }
func (s *LogSink) Winner(text string) {
	s.logger.Info("render_winner", zap.String("text", text))
}

func (s *LogSink) Controls(c Controls) {
	s.logger.Debug("render_controls",
		zap.Bool("auto_reply", c.AutoReply),
		zap.Bool("manual_enabled", c.ManualEnabled),
		zap.Bool("broker_request_enabled", c.BrokerRequestEnabled),
		zap.String("pending", c.PendingLabel),
	)
}

package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/engine"
	"github.com/park285/cheese-wargame/internal/session"
	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command types accepted from the UI.
const (
	CmdSelect        = "select"
	CmdCancel        = "cancel"
	CmdNewGame       = "new_game"
	CmdRestart       = "restart"
	CmdComputerNext  = "computer_next"
	CmdComputerAll   = "computer_all"
	CmdAutoReply     = "auto_reply"
	CmdBrokerRequest = "broker_request"
	CmdSetOption     = "set_option"
)

// Command is one UI action, as sent by websocket clients.
type Command struct {
	Type  string `json:"type"`
	Row   int    `json:"row,omitempty"`
	Col   int    `json:"col,omitempty"`
	On    bool   `json:"on,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// Dispatch routes cmd to the matching operation. It must run on the session loop.
func (c *Controller) Dispatch(cmd Command) error {
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case CmdSelect:
		coord := domain.Coordinate{Row: cmd.Row, Col: cmd.Col}
		if !coord.Valid() {
			return fmt.Errorf("invalid cell %s", coord)
		}
		c.SelectCell(coord)
	case CmdCancel:
		c.CancelMove()
	case CmdNewGame:
		return c.NewGame()
	case CmdRestart:
		return c.Restart()
	case CmdComputerNext:
		c.ComputerNextMove()
	case CmdComputerAll:
		c.ComputerAllMoves()
	case CmdAutoReply:
		c.SetAutoReply(cmd.On)
	case CmdBrokerRequest:
		c.RequestBrokerMove()
	case CmdSetOption:
		return c.SetEngineOption(cmd.Name, cmd.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

// SetEngineOption forwards an AI option to the current engine and remembers it for
// the engines of later sessions.
func (c *Controller) SetEngineOption(name, value string) error {
	s := c.Current()
	if s == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	err := applyOption(s, name, value)
	data := map[string]any{"Name": name, "Value": value}
	if err != nil {
		data["Error"] = err.Error()
		c.sink.Stats(c.msgs.Text("option.rejected", data, "Option "+name+" rejected: "+err.Error()))
		c.logger.Info("engine_option_rejected", zap.String("name", name), zap.String("value", value), zap.Error(err))
		return err
	}
	c.remember(name, value)
	c.sink.Stats(c.msgs.Text("option.applied", data, "Option "+name+" set to "+value+"."))
	c.sink.Info(s.Engine.Info())
	return nil
}

func applyOption(s *session.Session, name, value string) error {
	t, ok := s.Engine.(engine.Tunable)
	if !ok {
		return engine.ErrUnsupportedOption
	}
	return t.SetOption(name, value)
}

func (c *Controller) remember(name, value string) {
	for i := range c.options {
		if c.options[i].name == name {
			c.options[i].value = value
			return
		}
	}
	c.options = append(c.options, engineOption{name: name, value: value})
}

func (c *Controller) reapplyOptions(s *session.Session) {
	for _, o := range c.options {
		if err := applyOption(s, o.name, o.value); err != nil {
			c.logger.Warn("engine_option_reapply_error", zap.String("name", o.name), zap.Error(err))
		}
	}
}

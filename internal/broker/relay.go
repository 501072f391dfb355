package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/park285/cheese-wargame/internal/domain"
)

// Relay is a best-effort mirror holding the latest move posted by either client.
type Relay interface {
	Post(ctx context.Context, rec domain.TurnRecord) error
	// Fetch returns the raw "data" member of the relay payload; nil when absent.
	Fetch(ctx context.Context) (json.RawMessage, error)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }

var (
	ErrMalformedPayload = errf("malformed broker payload")
	ErrRelayStatus      = errf("broker returned non-2xx status")
	ErrUnsupportedURL   = errf("unsupported broker url scheme")
)

// envelope mirrors the relay response: {"success": true, "data": {...} | null}.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// wireRecord keeps every field optional so a partial payload can be detected.
type wireRecord struct {
	From *domain.Coordinate `json:"from"`
	To   *domain.Coordinate `json:"to"`
	Turn *int               `json:"turn"`
}

// DecodeRecord parses a relay data member. Anything short of a complete record,
// including null, is ErrMalformedPayload.
func DecodeRecord(raw json.RawMessage) (domain.TurnRecord, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return domain.TurnRecord{}, ErrMalformedPayload
	}
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.TurnRecord{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.From == nil || w.To == nil || w.Turn == nil {
		return domain.TurnRecord{}, ErrMalformedPayload
	}
	if !w.From.Valid() || !w.To.Valid() || *w.Turn < 1 {
		return domain.TurnRecord{}, ErrMalformedPayload
	}
	return domain.TurnRecord{From: *w.From, To: *w.To, Turn: *w.Turn}, nil
}

// RelayConfig is the broker section of the application config.
type RelayConfig struct {
	URL      string
	Username string
	Password string
}

// Enabled reports whether a broker URL was configured.
func (c RelayConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// Scheme returns the lower-cased URL scheme.
func (c RelayConfig) Scheme() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	s := strings.ToLower(u.Scheme)
	switch s {
	case "http", "https", "redis", "rediss":
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, u.Scheme)
	}
}

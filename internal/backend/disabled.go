package backend

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

var emptyRows = json.RawMessage(`[]`)

// Disabled stands in for the backend when it is not configured: reads are
// empty and writes are no-ops, so callers degrade instead of crashing.
type Disabled struct{}

// NewDisabled returns the not-configured client
func NewDisabled() *Disabled {
	log.Warn().Msg("Backend URL or API key not configured, backend features are disabled")
	return &Disabled{}
}

func (d *Disabled) Configured() bool { return false }

func (d *Disabled) Select(ctx context.Context, table string, q Query) (json.RawMessage, error) {
	return emptyRows, nil
}

func (d *Disabled) Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error) {
	log.Debug().Str("table", table).Msg("Backend disabled, dropping insert")
	return emptyRows, nil
}

func (d *Disabled) Update(ctx context.Context, table string, filters []Filter, values map[string]interface{}) (json.RawMessage, error) {
	log.Debug().Str("table", table).Msg("Backend disabled, dropping update")
	return emptyRows, nil
}

func (d *Disabled) Delete(ctx context.Context, table string, filters []Filter) error {
	return nil
}

func (d *Disabled) RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error) {
	log.Debug().Str("function", fn).Msg("Backend disabled, skipping remote procedure")
	return json.RawMessage(`null`), nil
}

// SignInWithPassword always fails: there is nobody to authenticate against
func (d *Disabled) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	return nil, ErrNotConfigured
}

func (d *Disabled) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

func (d *Disabled) Invoke(ctx context.Context, name string, body interface{}) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}

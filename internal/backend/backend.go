package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a filter comparison understood by every driver
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpIs    Operator = "is"

	// OpWithinOrNull matches NULL or a value inside a Range
	OpWithinOrNull Operator = "within_or_null"
)

// Filter restricts a table read or write to matching rows.
// OpIs only supports a nil Value (IS NULL).
type Filter struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// Eq builds an equality filter
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Operator: OpEq, Value: value}
}

// Gte builds a lower-bound filter
func Gte(column string, value interface{}) Filter {
	return Filter{Column: column, Operator: OpGte, Value: value}
}

// Lte builds an upper-bound filter
func Lte(column string, value interface{}) Filter {
	return Filter{Column: column, Operator: OpLte, Value: value}
}

// ILike builds a case-insensitive pattern filter
func ILike(column string, pattern string) Filter {
	return Filter{Column: column, Operator: OpILike, Value: pattern}
}

// In builds a membership filter
func In(column string, values []string) Filter {
	return Filter{Column: column, Operator: OpIn, Value: values}
}

// IsNull matches rows where column is NULL
func IsNull(column string) Filter {
	return Filter{Column: column, Operator: OpIs, Value: nil}
}

// Range is an inclusive window; a nil bound is open
type Range struct {
	From interface{}
	To   interface{}
}

// WithinOrNull matches rows whose column is NULL or lies in [from, to]
func WithinOrNull(column string, from, to interface{}) Filter {
	return Filter{Column: column, Operator: OpWithinOrNull, Value: Range{From: from, To: to}}
}

// Order sorts a read
type Order struct {
	Column     string
	Descending bool
}

// Query describes a table read
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Client is the table and remote-procedure surface of the backend.
// Every method returns the raw JSON payload; decoding into DTOs happens
// in the models package so there is a single mapping boundary.
type Client interface {
	// Configured reports whether the client talks to a real backend
	Configured() bool

	Select(ctx context.Context, table string, q Query) (json.RawMessage, error)
	Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error)
	Update(ctx context.Context, table string, filters []Filter, values map[string]interface{}) (json.RawMessage, error)
	Delete(ctx context.Context, table string, filters []Filter) error
	RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error)
}

// AuthSession is the result of a password sign-in
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Authenticator signs sellers in and out
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// FunctionInvoker calls HTTPS functions hosted next to the backend
type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, body interface{}) (json.RawMessage, error)
}

// TokenScoper returns a client acting with the given access token.
// Drivers without per-user identity return themselves.
type TokenScoper interface {
	WithAccessToken(token string) Client
}

// Scoped returns c acting as the holder of token, when the driver supports it
func Scoped(c Client, token string) Client {
	if token == "" {
		return c
	}
	if s, ok := c.(TokenScoper); ok {
		return s.WithAccessToken(token)
	}
	return c
}

// ValidateIdentifier guards table, column and function names that end up
// in URLs or SQL text.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

// Describe renders filters for log lines
func Describe(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("%s.%s.%v", f.Column, f.Operator, f.Value))
	}
	return strings.Join(parts, "&")
}

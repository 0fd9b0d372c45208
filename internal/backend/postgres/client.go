package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"example.com/backstage/dairy/config"
	"example.com/backstage/dairy/internal/backend"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client reaches the backend database directly. It is meant for trusted
// server-side deployments (worker, gateway) that hold a database role.
type Client struct {
	db *gorm.DB
}

// Open connects to the database described by cfg
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormpg.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// NewClient wraps an open gorm connection
func NewClient(db *gorm.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Configured() bool { return c.db != nil }

func (c *Client) Select(ctx context.Context, table string, q backend.Query) (json.RawMessage, error) {
	stmt, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	return c.queryJSON(ctx, stmt, args)
}

func (c *Client) Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error) {
	stmt, args, err := buildInsert(table, rows)
	if err != nil {
		return nil, err
	}
	return c.queryJSON(ctx, stmt, args)
}

func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, values map[string]interface{}) (json.RawMessage, error) {
	stmt, args, err := buildUpdate(table, filters, values)
	if err != nil {
		return nil, err
	}
	return c.queryJSON(ctx, stmt, args)
}

func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	stmt, args, err := buildDelete(table, filters)
	if err != nil {
		return err
	}
	if err := c.db.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error) {
	stmt, args, err := buildRPC(fn, params)
	if err != nil {
		return nil, err
	}
	return c.queryJSON(ctx, stmt, args)
}

// SignInWithPassword is not available: the database role is the identity
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.AuthSession, error) {
	return nil, backend.ErrNotSupported
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

// Invoke is not available without the functions gateway
func (c *Client) Invoke(ctx context.Context, name string, body interface{}) (json.RawMessage, error) {
	return nil, backend.ErrNotSupported
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) queryJSON(ctx context.Context, stmt string, args []interface{}) (json.RawMessage, error) {
	start := time.Now()
	var out sql.NullString
	row := c.db.WithContext(ctx).Raw(stmt, args...).Row()
	if err := row.Scan(&out); err != nil {
		return nil, mapError(err)
	}
	log.Debug().Dur("latency", time.Since(start)).Msg("Database query")
	if !out.Valid {
		return json.RawMessage(`[]`), nil
	}
	return json.RawMessage(out.String), nil
}

// mapError turns driver errors into backend errors carrying the SQLSTATE
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return errors.Wrap(err, "database query failed")
}

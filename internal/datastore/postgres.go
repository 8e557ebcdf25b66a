package datastore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const serverColumns = `id, name, host, api_port, api_user, api_password, application,
	session_limit, active_sessions, cpu_load, status`

// PostgresConfig tunes the connection pool behind PostgresGateway.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	ApplicationName string
}

// PostgresGateway implements Gateway on top of a pgx connection pool.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens and pings a pool for cfg.DSN.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresGateway, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresGateway{pool: pool}, nil
}

// NewPostgresGateway wraps an existing pool.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

// EnsureSchema creates the server pool tables when they are missing.
func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (g *PostgresGateway) Close() {
	if g != nil && g.pool != nil {
		g.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// ActiveServers implements Gateway.ActiveServers.
func (g *PostgresGateway) ActiveServers(ctx context.Context) ([]MediaServer, error) {
	rows, err := g.pool.Query(ctx, `
SELECT `+serverColumns+`
FROM media_servers
WHERE status = 'active'
ORDER BY active_sessions ASC, cpu_load ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("query active servers: %w", err)
	}
	defer rows.Close()

	var servers []MediaServer
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media server: %w", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active servers: %w", err)
	}
	return servers, nil
}

// ServerByID implements Gateway.ServerByID.
func (g *PostgresGateway) ServerByID(ctx context.Context, id int64) (MediaServer, error) {
	row := g.pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM media_servers WHERE id = $1`, id)
	s, err := scanServer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MediaServer{}, ErrServerNotFound
	}
	if err != nil {
		return MediaServer{}, fmt.Errorf("get media server %d: %w", id, err)
	}
	return s, nil
}

// UserServerBinding implements Gateway.UserServerBinding.
func (g *PostgresGateway) UserServerBinding(ctx context.Context, userID string) (int64, bool, error) {
	var id int64
	err := g.pool.QueryRow(ctx, `SELECT server_id FROM user_server_bindings WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get server binding for %s: %w", userID, err)
	}
	return id, true, nil
}

// IncrementActive implements Gateway.IncrementActive.
func (g *PostgresGateway) IncrementActive(ctx context.Context, id int64) (int, error) {
	var active int
	err := g.pool.QueryRow(ctx, `
UPDATE media_servers
SET active_sessions = active_sessions + 1
WHERE id = $1 AND active_sessions < session_limit
RETURNING active_sessions
`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		s, lookupErr := g.ServerByID(ctx, id)
		if lookupErr != nil {
			return 0, lookupErr
		}
		return s.Active, ErrCapacityExceeded
	}
	if err != nil {
		return 0, fmt.Errorf("increment active sessions for %d: %w", id, err)
	}
	return active, nil
}

// DecrementActive implements Gateway.DecrementActive.
func (g *PostgresGateway) DecrementActive(ctx context.Context, id int64) (int, error) {
	var active int
	err := g.pool.QueryRow(ctx, `
UPDATE media_servers
SET active_sessions = GREATEST(active_sessions - 1, 0)
WHERE id = $1
RETURNING active_sessions
`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrServerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement active sessions for %d: %w", id, err)
	}
	return active, nil
}

func scanServer(row pgx.Row) (MediaServer, error) {
	var (
		s      MediaServer
		status string
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Host, &s.APIPort, &s.APIUser, &s.APIPassword, &s.Application,
		&s.Limit, &s.Active, &s.CPULoad, &status,
	)
	s.Status = ServerStatus(status)
	return s, err
}

package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"GoRelaxSessionEngine/internal/session"
)

// PgxConfig PostgreSQL归档配置
type PgxConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPgxConfig 默认配置
func DefaultPgxConfig() *PgxConfig {
	return &PgxConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "relax_sessions",
		SSLMode: "disable",
	}
}

// PgxArchive PostgreSQL归档实现，结果写入session_results表
type PgxArchive struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS session_results (
	session_id       TEXT PRIMARY KEY,
	completed_at     TIMESTAMPTZ NOT NULL,
	kind             TEXT NOT NULL,
	script_id        TEXT,
	planned_seconds  BIGINT NOT NULL,
	actual_seconds   BIGINT NOT NULL,
	completed_fully  BOOLEAN NOT NULL
)`

// ConnectPgx 建立连接池并准备结果表
func ConnectPgx(ctx context.Context, config *PgxConfig) (*PgxArchive, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.User, config.Password, config.Host, config.Port, config.DBName, config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// 连接池参数：单设备引擎的写入量很小
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure results table: %w", err)
	}

	log.Println("✅ PostgreSQL归档连接池创建成功")
	return &PgxArchive{pool: pool}, nil
}

// Save 写入一条会话结果。不在此处重试，失败直接上抛。
func (a *PgxArchive) Save(ctx context.Context, result *session.Result) error {
	const insertSQL = `
		INSERT INTO session_results
			(session_id, completed_at, kind, script_id, planned_seconds, actual_seconds, completed_fully)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`

	_, err := a.pool.Exec(ctx, insertSQL,
		result.SessionID,
		result.CompletedAt,
		string(result.Kind),
		result.ScriptID,
		int64(result.PlannedDuration/time.Second),
		int64(result.ActualDuration/time.Second),
		result.CompletedFully,
	)
	if err != nil {
		return fmt.Errorf("failed to save session result: %w", err)
	}

	return nil
}

// Close 关闭连接池
func (a *PgxArchive) Close() {
	if a.pool != nil {
		a.pool.Close()
		log.Println("✅ PostgreSQL归档连接池已关闭")
	}
}

// Ping 检查数据库连通性
func (a *PgxArchive) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return a.pool.Ping(pingCtx)
}

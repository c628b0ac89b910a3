// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/mafia/config"
	"github.com/wfunc/mafia/models"
)

// Database 对局记录存储接口
type Database interface {
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
	GetGameRecord(ctx context.Context, id string) (models.GameRecord, error)
	// RecentGameRecords 按结束时间倒序
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	GameRecordsByRoom(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error)
	TeamWins(ctx context.Context) (map[models.Team]int, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

const defaultLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}

// Open 按配置选择存储实现
func Open(cfg config.DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "gorm":
		return NewGormPostgreSQL(cfg.Postgres)
	case "postgres":
		return NewPostgreSQL(cfg.Postgres)
	case "pebble":
		return NewPebbleStore(cfg.Pebble.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func dsn(cfg config.PostgresConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
}

// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/wfunc/mafia/config"
	"github.com/wfunc/mafia/models"

	_ "github.com/lib/pq" // PostgreSQL 驱动
)

const queryTimeout = 5 * time.Second

// PostgreSQL 数据库实现，表结构与 GORM 迁移出的 game_records 兼容
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(cfg config.PostgresConfig) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(cfg))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            record_id TEXT NOT NULL,
            room_code TEXT NOT NULL,
            winner TEXT NOT NULL,
            rounds_played BIGINT NOT NULL,
            players JSONB,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_game_records_record_id ON game_records(record_id);
        CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_game_records_winner ON game_records(winner);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
    `)
	return err
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO game_records (record_id, room_code, winner, rounds_played, players, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (record_id)
        DO UPDATE SET room_code = $2, winner = $3, rounds_played = $4, players = $5,
            started_at = $6, finished_at = $7, updated_at = CURRENT_TIMESTAMP
    `

	_, err = p.db.ExecContext(ctx, query,
		record.ID,
		record.RoomCode,
		string(record.Winner),
		record.RoundsPlayed,
		players,
		record.StartedAt,
		record.FinishedAt)
	return err
}

const selectRecord = `SELECT record_id, room_code, winner, rounds_played, players, started_at, finished_at FROM game_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.GameRecord, error) {
	var (
		rec     models.GameRecord
		winner  string
		players []byte
	)
	if err := row.Scan(&rec.ID, &rec.RoomCode, &winner, &rec.RoundsPlayed, &players, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return rec, err
	}
	rec.Winner = models.Team(winner)
	if len(players) > 0 {
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func (p *PostgreSQL) GetGameRecord(ctx context.Context, id string) (models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec, err := scanRecord(p.db.QueryRowContext(ctx, selectRecord+` WHERE record_id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameRecord{}, ErrRecordNotFound
	}
	return rec, err
}

func (p *PostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return p.query(ctx, selectRecord+` WHERE deleted_at IS NULL ORDER BY finished_at DESC LIMIT $1`, normalizeLimit(limit))
}

func (p *PostgreSQL) GameRecordsByRoom(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error) {
	return p.query(ctx, selectRecord+` WHERE room_code = $1 AND deleted_at IS NULL ORDER BY finished_at DESC LIMIT $2`, roomCode, normalizeLimit(limit))
}

func (p *PostgreSQL) query(ctx context.Context, query string, args ...any) ([]models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TeamWins 按阵营统计胜场
func (p *PostgreSQL) TeamWins(ctx context.Context) (map[models.Team]int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT winner, COUNT(*) FROM game_records WHERE deleted_at IS NULL GROUP BY winner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wins := make(map[models.Team]int)
	for rows.Next() {
		var (
			winner string
			count  int
		)
		if err := rows.Scan(&winner, &count); err != nil {
			return nil, err
		}
		wins[models.Team(winner)] = count
	}
	return wins, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

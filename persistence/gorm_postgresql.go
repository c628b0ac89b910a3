// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/wfunc/mafia/config"
	"github.com/wfunc/mafia/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(cfg config.PostgresConfig) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveGameRecord 保存游戏记录，相同 RecordID 覆盖
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	row := models.NewGormGameRecord(record)
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_code", "winner", "rounds_played", "players", "started_at", "finished_at", "updated_at"}),
	}).Create(row).Error
}

func (p *GormPostgreSQL) GetGameRecord(ctx context.Context, id string) (models.GameRecord, error) {
	var row models.GormGameRecord
	if err := p.db.WithContext(ctx).Where("record_id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}
	return row.ToRecord(), nil
}

func (p *GormPostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return p.find(p.db.WithContext(ctx), limit)
}

func (p *GormPostgreSQL) GameRecordsByRoom(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error) {
	return p.find(p.db.WithContext(ctx).Where("room_code = ?", roomCode), limit)
}

func (p *GormPostgreSQL) find(q *gorm.DB, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	if err := q.Order("finished_at DESC").Limit(normalizeLimit(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.GameRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToRecord())
	}
	return out, nil
}

// TeamWins 按阵营统计胜场
func (p *GormPostgreSQL) TeamWins(ctx context.Context) (map[models.Team]int, error) {
	var rows []struct {
		Winner string
		Wins   int
	}
	err := p.db.WithContext(ctx).
		Model(&models.GormGameRecord{}).
		Select("winner, COUNT(*) AS wins").
		Group("winner").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	wins := make(map[models.Team]int, len(rows))
	for _, r := range rows {
		wins[models.Team(r.Winner)] = r.Wins
	}
	return wins, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

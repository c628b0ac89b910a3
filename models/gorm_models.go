// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGameRecord 游戏记录表
type GormGameRecord struct {
	gorm.Model
	RecordID     string       `gorm:"uniqueIndex;not null"`
	RoomCode     string       `gorm:"index;not null"`
	Winner       string       `gorm:"index;not null"`
	RoundsPlayed int          `gorm:"not null"`
	Players      []PlayerView `gorm:"serializer:json;type:jsonb"`
	StartedAt    time.Time
	FinishedAt   time.Time `gorm:"index"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

func NewGormGameRecord(rec GameRecord) *GormGameRecord {
	return &GormGameRecord{
		RecordID:     rec.ID,
		RoomCode:     rec.RoomCode,
		Winner:       string(rec.Winner),
		RoundsPlayed: rec.RoundsPlayed,
		Players:      rec.Players,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
}

func (g *GormGameRecord) ToRecord() GameRecord {
	return GameRecord{
		ID:           g.RecordID,
		RoomCode:     g.RoomCode,
		Winner:       Team(g.Winner),
		RoundsPlayed: g.RoundsPlayed,
		Players:      g.Players,
		StartedAt:    g.StartedAt,
		FinishedAt:   g.FinishedAt,
	}
}

// services/record_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/persistence"
)

// RecordService 对局归档与战绩查询，实现 room.Archiver
type RecordService struct {
	db persistence.Database
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

// TeamStats 阵营胜场统计
type TeamStats struct {
	Games int                 `json:"games"`
	Wins  map[models.Team]int `json:"wins"`
}

// ArchiveGame 保存已结束的对局，返回的记录 id 由服务生成
func (s *RecordService) ArchiveGame(ctx context.Context, roomCode string, result models.GameResult) error {
	_, err := s.Archive(ctx, roomCode, result)
	return err
}

func (s *RecordService) Archive(ctx context.Context, roomCode string, result models.GameResult) (models.GameRecord, error) {
	rec := models.GameRecord{
		ID:           uuid.NewString(),
		RoomCode:     roomCode,
		Winner:       result.Winner,
		RoundsPlayed: result.RoundsPlayed,
		Players:      result.FinalRoster,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if err := s.db.SaveGameRecord(ctx, rec); err != nil {
		return rec, fmt.Errorf("save game record for room %s: %w", roomCode, err)
	}
	logger.Log.Infof("房间 %s 对局已归档 %s，胜方 %s", roomCode, rec.ID, rec.Winner)
	return rec, nil
}

func (s *RecordService) Get(ctx context.Context, id string) (models.GameRecord, error) {
	rec, err := s.db.GetGameRecord(ctx, id)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return rec, fmt.Errorf("%w: record %s", models.ErrNotFound, id)
	}
	return rec, err
}

// Recent 最近的对局，roomCode 非空时只查该房间
func (s *RecordService) Recent(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error) {
	if roomCode != "" {
		return s.db.GameRecordsByRoom(ctx, roomCode, limit)
	}
	return s.db.RecentGameRecords(ctx, limit)
}

func (s *RecordService) TeamStats(ctx context.Context) (TeamStats, error) {
	wins, err := s.db.TeamWins(ctx)
	if err != nil {
		return TeamStats{}, err
	}
	stats := TeamStats{Wins: wins}
	for _, n := range wins {
		stats.Games += n
	}
	return stats, nil
}

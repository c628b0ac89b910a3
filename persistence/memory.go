package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/mafia/models"
)

// MemoryStore 内存实现，进程退出即丢失
type MemoryStore struct {
	records []models.GameRecord
	mutex   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, r := range s.records {
		if r.ID == record.ID {
			s.records[i] = record
			return nil
		}
	}
	s.records = append(s.records, record)
	// 保持按结束时间倒序
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].FinishedAt.After(s.records[j].FinishedAt)
	})
	return nil
}

func (s *MemoryStore) GetGameRecord(ctx context.Context, id string) (models.GameRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.GameRecord{}, ErrRecordNotFound
}

func (s *MemoryStore) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.filter(normalizeLimit(limit), func(models.GameRecord) bool { return true }), nil
}

func (s *MemoryStore) GameRecordsByRoom(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error) {
	return s.filter(normalizeLimit(limit), func(r models.GameRecord) bool { return r.RoomCode == roomCode }), nil
}

func (s *MemoryStore) filter(limit int, keep func(models.GameRecord) bool) []models.GameRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]models.GameRecord, 0, limit)
	for _, r := range s.records {
		if len(out) == limit {
			break
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) TeamWins(ctx context.Context) (map[models.Team]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	wins := make(map[models.Team]int)
	for _, r := range s.records {
		wins[r.Winner]++
	}
	return wins, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

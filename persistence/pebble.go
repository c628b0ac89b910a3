package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/wfunc/mafia/models"
)

// 键布局：
//
//	rec/<结束时间 unixnano，20 位补零>/<id> -> JSON 记录
//	id/<id>                               -> 上面的主键
//
// 主键按字典序即按时间排序，倒序遍历得到最近的记录。
const (
	recordPrefix = "rec/"
	indexPrefix  = "id/"
)

// PebbleStore 基于 Pebble 的嵌入式存储，单机部署不需要 PostgreSQL
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore 在 dir 打开或创建数据库
func NewPebbleStore(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("pebble path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return openPebble(filepath.Clean(dir), &pebble.Options{})
}

// NewMemPebbleStore 使用内存文件系统，用于测试
func NewMemPebbleStore() (*PebbleStore, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(dir string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func recordKey(rec models.GameRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", recordPrefix, rec.FinishedAt.UnixNano(), rec.ID))
}

// prefixEnd 前缀扫描的上界
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

func (s *PebbleStore) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	if strings.ContainsRune(record.ID, '/') || record.ID == "" {
		return fmt.Errorf("invalid record id %q", record.ID)
	}
	val, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := recordKey(record)
	index := []byte(indexPrefix + record.ID)

	batch := s.db.NewBatch()
	defer batch.Close()

	// 覆盖已存在的记录
	old, closer, err := s.db.Get(index)
	switch {
	case err == nil:
		oldKey := append([]byte(nil), old...)
		closer.Close()
		if err := batch.Delete(oldKey, nil); err != nil {
			return err
		}
	case !errors.Is(err, pebble.ErrNotFound):
		return err
	}

	if err := batch.Set(key, val, nil); err != nil {
		return err
	}
	if err := batch.Set(index, key, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetGameRecord(ctx context.Context, id string) (models.GameRecord, error) {
	key, closer, err := s.db.Get([]byte(indexPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return models.GameRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.GameRecord{}, err
	}
	primary := append([]byte(nil), key...)
	closer.Close()

	val, closer, err := s.db.Get(primary)
	if errors.Is(err, pebble.ErrNotFound) {
		return models.GameRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return models.GameRecord{}, err
	}
	defer closer.Close()

	var rec models.GameRecord
	err = json.Unmarshal(val, &rec)
	return rec, err
}

func (s *PebbleStore) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.scan(ctx, normalizeLimit(limit), func(models.GameRecord) bool { return true })
}

func (s *PebbleStore) GameRecordsByRoom(ctx context.Context, roomCode string, limit int) ([]models.GameRecord, error) {
	return s.scan(ctx, normalizeLimit(limit), func(r models.GameRecord) bool { return r.RoomCode == roomCode })
}

// scan 从最新的记录开始倒序遍历，limit <= 0 表示不限
func (s *PebbleStore) scan(ctx context.Context, limit int, keep func(models.GameRecord) bool) ([]models.GameRecord, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(recordPrefix),
		UpperBound: prefixEnd(recordPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []models.GameRecord
	for it.Last(); it.Valid(); it.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec models.GameRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		if !keep(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, it.Error()
}

func (s *PebbleStore) TeamWins(ctx context.Context) (map[models.Team]int, error) {
	records, err := s.scan(ctx, 0, func(models.GameRecord) bool { return true })
	if err != nil {
		return nil, err
	}
	wins := make(map[models.Team]int)
	for _, r := range records {
		wins[r.Winner]++
	}
	return wins, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

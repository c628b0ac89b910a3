package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/state"
)

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength    = 5
	maxCodeLength = 8
	codeAttempts  = 100
)

// Stats 房间统计
type Stats struct {
	Rooms   int `json:"rooms"`
	Players int `json:"players"`
}

// Manager 管理所有房间（房间注册表）。房间码不区分大小写。
type Manager struct {
	rooms   map[string]*Room
	players map[string]string // playerID -> room code
	mutex   sync.RWMutex

	sink        state.EventSink
	timers      Scheduler
	observer    Observer
	archiver    Archiver
	binder      Binder
	machineOpts []state.Option
	sweepID     int64
}

type ManagerOption func(*Manager)

// WithScheduler 启用阶段计时器
func WithScheduler(s Scheduler) ManagerOption {
	return func(m *Manager) { m.timers = s }
}

func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) { m.archiver = a }
}

// WithBinder 加入房间时同步更新连接的房间码
func WithBinder(b Binder) ManagerOption {
	return func(m *Manager) { m.binder = b }
}

// WithMachineOptions 每个新房间状态机使用的选项
func WithMachineOptions(opts ...state.Option) ManagerOption {
	return func(m *Manager) { m.machineOpts = append(m.machineOpts, opts...) }
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(sink state.EventSink, opts ...ManagerOption) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		players:  make(map[string]string),
		sink:     sink,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeCode 统一为大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string) bool {
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return false
		}
	}
	return true
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// CreateRoom 生成一个未被占用的房间码并创建房间
func (m *Manager) CreateRoom() (*Room, error) {
	for range codeAttempts {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		m.mutex.Lock()
		if _, exists := m.rooms[code]; !exists {
			r := m.openLocked(code)
			m.mutex.Unlock()
			return r, nil
		}
		m.mutex.Unlock()
	}
	return nil, errors.New("could not allocate a room code")
}

func (m *Manager) openLocked(code string) *Room {
	r := newRoom(code, m)
	m.rooms[code] = r
	m.observer.RoomOpened()
	logger.Log.Infof("房间 %s 已创建", code)
	return r
}

// getOrOpen 获取房间，不存在时创建
func (m *Manager) getOrOpen(code string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if r, exists := m.rooms[code]; exists {
		return r, false
	}
	return m.openLocked(code), true
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[NormalizeCode(code)]
	return room, exists
}

// RoomOf 玩家当前所在的房间码
func (m *Manager) RoomOf(playerID string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	code, ok := m.players[playerID]
	return code, ok
}

// Join 加入房间，房间不存在时创建；code 为空时生成新房间码。
// 返回最终的房间码。
func (m *Manager) Join(ctx context.Context, code, playerID, name string) (string, error) {
	code = NormalizeCode(code)
	if code != "" && !validCode(code) {
		return "", m.reject(code, playerID, fmt.Errorf("%w: invalid room code %q", models.ErrIllegalAction, code))
	}
	if current, ok := m.RoomOf(playerID); ok && current != code {
		if _, exists := m.GetRoom(current); exists {
			return "", m.reject(code, playerID, fmt.Errorf("%w: already in room %s", models.ErrIllegalAction, current))
		}
	}

	// 房间可能在查找后因为变空而关闭，重试一次
	for attempt := 0; attempt < 2; attempt++ {
		var (
			r       *Room
			created bool
		)
		if code == "" {
			fresh, err := m.CreateRoom()
			if err != nil {
				return "", err
			}
			r, created = fresh, true
		} else {
			r, created = m.getOrOpen(code)
		}

		in := models.Intent{Kind: models.IntentJoin, RoomCode: r.Code, ActorID: playerID, Name: name}
		err := m.runJoin(ctx, r, in)
		if errors.Is(err, ErrRoomClosed) {
			m.dropRoom(r)
			continue
		}
		if err != nil {
			if created {
				// 新建的房间加入失败时不保留
				m.closeIfEmpty(ctx, r)
			}
			return "", err
		}

		m.mutex.Lock()
		m.players[playerID] = r.Code
		m.mutex.Unlock()
		return r.Code, nil
	}
	return "", ErrRoomClosed
}

// Dispatch 将意图路由到对应房间
func (m *Manager) Dispatch(ctx context.Context, in models.Intent) error {
	in.RoomCode = NormalizeCode(in.RoomCode)
	if in.Kind == models.IntentJoin {
		_, err := m.Join(ctx, in.RoomCode, in.ActorID, in.Name)
		return err
	}

	r, ok := m.GetRoom(in.RoomCode)
	if !ok {
		return m.reject(in.RoomCode, in.ActorID, fmt.Errorf("%w: room %s does not exist", models.ErrNotFound, in.RoomCode))
	}
	if err := m.run(ctx, r, in); err != nil {
		return err
	}
	if in.Kind == models.IntentLeaveRoom {
		m.unbind(in.ActorID, r.Code)
	}
	return nil
}

// run 在房间中执行意图并记录指标
func (m *Manager) run(ctx context.Context, r *Room, in models.Intent) error {
	start := time.Now()
	err := r.Do(ctx, func(machine *state.Machine) error {
		r.lastActive = time.Now()
		return machine.Handle(in)
	})
	m.observer.IntentHandled(in.Kind, time.Since(start), err)
	return err
}

// runJoin 与 run 相同，但在房间循环内绑定连接，失败时恢复
func (m *Manager) runJoin(ctx context.Context, r *Room, in models.Intent) error {
	start := time.Now()
	err := r.Do(ctx, func(machine *state.Machine) error {
		r.lastActive = time.Now()
		if m.binder == nil {
			return machine.Handle(in)
		}
		previous := m.binder.BindRoom(in.ActorID, r.Code)
		err := machine.Handle(in)
		if err != nil {
			m.binder.BindRoom(in.ActorID, previous)
		}
		return err
	})
	m.observer.IntentHandled(in.Kind, time.Since(start), err)
	return err
}

// reject 房间之外的拒绝同样只发给发起者
func (m *Manager) reject(code, playerID string, err error) error {
	if m.sink != nil && playerID != "" {
		m.sink.PublishToPlayer(code, playerID, models.Event{
			Type:    models.EventError,
			Room:    code,
			Payload: models.ErrorMsg{Kind: models.ErrorKind(err), Reason: err.Error()},
		})
	}
	return err
}

// Disconnect 连接断开，玩家记录保留以便重连
func (m *Manager) Disconnect(ctx context.Context, playerID string) {
	code, ok := m.RoomOf(playerID)
	if !ok {
		return
	}
	r, ok := m.GetRoom(code)
	if !ok {
		return
	}
	err := r.Do(ctx, func(machine *state.Machine) error {
		r.lastActive = time.Now()
		machine.Disconnect(playerID)
		return nil
	})
	if err != nil && !errors.Is(err, ErrRoomClosed) {
		logger.Log.Warnf("房间 %s 处理玩家 %s 断线失败: %v", code, playerID, err)
	}
}

func (m *Manager) unbind(playerID, code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.players[playerID] == code {
		delete(m.players, playerID)
	}
}

func (m *Manager) closeIfEmpty(ctx context.Context, r *Room) {
	var empty bool
	_ = r.Do(ctx, func(machine *state.Machine) error {
		empty = machine.Empty()
		return nil
	})
	if empty {
		m.dropRoom(r)
	}
}

// dropRoom 从注册表移除并关闭房间，只移除同一个实例
func (m *Manager) dropRoom(r *Room) {
	m.mutex.Lock()
	current, exists := m.rooms[r.Code]
	removed := exists && current == r
	if removed {
		delete(m.rooms, r.Code)
		for pid, code := range m.players {
			if code == r.Code {
				delete(m.players, pid)
			}
		}
	}
	m.mutex.Unlock()

	r.Close()
	if removed {
		m.observer.RoomClosed()
		logger.Log.Infof("房间 %s 已关闭", r.Code)
	}
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(code string) {
	if r, ok := m.GetRoom(code); ok {
		m.dropRoom(r)
	}
}

// Snapshot 获取房间的公开快照
func (m *Manager) Snapshot(ctx context.Context, code string) (state.Snapshot, error) {
	r, ok := m.GetRoom(code)
	if !ok {
		return state.Snapshot{}, fmt.Errorf("%w: room %s does not exist", models.ErrNotFound, NormalizeCode(code))
	}
	return r.Snapshot(ctx)
}

// Stats 当前房间数与在房间中的玩家数
func (m *Manager) Stats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Stats{Rooms: len(m.rooms), Players: len(m.players)}
}

// Codes 所有房间码，不对外公开房间列表，只用于运维接口
func (m *Manager) Codes() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (m *Manager) allRooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// Sweep 关闭所有玩家离线超过 ttl 的房间，返回关闭数量
func (m *Manager) Sweep(ctx context.Context, now time.Time, ttl time.Duration) int {
	closed := 0
	for _, r := range m.allRooms() {
		since, idle, err := r.idleSince(ctx)
		if err != nil || !idle {
			continue
		}
		if now.Sub(since) >= ttl {
			logger.Log.Infof("房间 %s 空闲超过 %v，关闭", r.Code, ttl)
			m.dropRoom(r)
			closed++
		}
	}
	return closed
}

// StartSweeper 定期清理空闲房间，需要配置 Scheduler
func (m *Manager) StartSweeper(interval, ttl time.Duration) {
	if m.timers == nil || interval <= 0 {
		return
	}
	m.sweepID = m.timers.AddTimer(interval, interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		m.Sweep(ctx, time.Now(), ttl)
	})
}

// Close 关闭所有房间
func (m *Manager) Close() {
	if m.timers != nil && m.sweepID != 0 {
		m.timers.RemoveTimer(m.sweepID)
	}
	for _, r := range m.allRooms() {
		m.dropRoom(r)
	}
}

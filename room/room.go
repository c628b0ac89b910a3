// room/room.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/state"
)

// ErrRoomClosed 房间已关闭，命令未执行
var ErrRoomClosed = errors.New("room closed")

const (
	commandBuffer  = 64
	archiveTimeout = 5 * time.Second
)

// Room 是游戏房间的核心结构。状态机只在 loop 协程中访问，
// 所有意图、断线和计时器回调都作为命令排队，按到达顺序执行。
type Room struct {
	Code      string
	CreatedAt time.Time

	machine    *state.Machine
	manager    *Manager
	commands   chan func()
	closeChan  chan struct{}
	closeOnce  sync.Once
	lastActive time.Time // 最近一次玩家操作
	occupied   bool // 曾经有玩家加入
}

func newRoom(code string, manager *Manager) *Room {
	r := &Room{
		Code:       code,
		CreatedAt:  time.Now(),
		manager:    manager,
		commands:   make(chan func(), commandBuffer),
		closeChan:  make(chan struct{}),
		lastActive: time.Now(),
	}

	opts := append([]state.Option{}, manager.machineOpts...)
	if manager.timers != nil {
		opts = append(opts, state.WithScheduler(r))
	}
	opts = append(opts, state.WithGameOverHook(r.onGameOver))
	r.machine = state.NewMachine(code, manager.sink, opts...)

	go r.loop()
	return r
}

// loop 是房间的主循环，串行执行命令
func (r *Room) loop() {
	for {
		select {
		case cmd := <-r.commands:
			cmd()
		case <-r.closeChan:
			return
		}
	}
}

// Do 在房间循环中执行 fn 并等待结果
func (r *Room) Do(ctx context.Context, fn func(m *state.Machine) error) error {
	reply := make(chan error, 1)
	cmd := func() {
		err := fn(r.machine)
		empty := r.machine.Empty()
		if !empty {
			r.occupied = true
		}
		reply <- err
		// 最后一名玩家离开后销毁房间
		if empty && r.occupied {
			r.manager.dropRoom(r)
		}
	}

	select {
	case r.commands <- cmd:
	case <-r.closeChan:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-r.closeChan:
		// 命令可能已执行完才关闭
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue 投递不需要结果的命令，房间关闭时丢弃
func (r *Room) enqueue(cmd func()) bool {
	select {
	case r.commands <- cmd:
		return true
	case <-r.closeChan:
		return false
	}
}

// AfterFunc 实现 state.Scheduler，回调回到房间循环中执行
func (r *Room) AfterFunc(d time.Duration, fn func()) func() {
	id := r.manager.timers.AddTimer(d, 0, func() {
		r.enqueue(fn)
	})
	return func() {
		r.manager.timers.RemoveTimer(id)
	}
}

// Snapshot 获取房间的公开快照
func (r *Room) Snapshot(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	err := r.Do(ctx, func(m *state.Machine) error {
		snap = m.Snapshot()
		return nil
	})
	return snap, err
}

// idleSince 所有玩家离线时返回最近活动时间
func (r *Room) idleSince(ctx context.Context) (time.Time, bool, error) {
	var (
		since time.Time
		idle  bool
	)
	err := r.Do(ctx, func(m *state.Machine) error {
		since, idle = m.IdleSince()
		if idle && r.lastActive.After(since) {
			since = r.lastActive
		}
		return nil
	})
	return since, idle, err
}

// onGameOver 在房间循环中调用，归档放到后台执行
func (r *Room) onGameOver(result models.GameResult) {
	r.manager.observer.GameFinished(result.Winner)
	archiver := r.manager.archiver
	if archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := archiver.ArchiveGame(ctx, r.Code, result); err != nil {
			logger.Log.Errorf("房间 %s 对局归档失败: %v", r.Code, err)
		}
	}()
}

// Close 关闭房间，停止主循环
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
	})
}

// Closed 房间是否已关闭
func (r *Room) Closed() bool {
	select {
	case <-r.closeChan:
		return true
	default:
		return false
	}
}

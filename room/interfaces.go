package room

import (
	"context"
	"time"

	"github.com/wfunc/mafia/models"
)

// Scheduler 定时器来源，由 timer.TimerManager 实现
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Observer 房间运行指标，由 monitor.Monitor 实现。
// 定义在这里以避免 room 依赖监控实现。
type Observer interface {
	RoomOpened()
	RoomClosed()
	IntentHandled(kind models.IntentKind, elapsed time.Duration, err error)
	GameFinished(winner models.Team)
}

// Archiver 对局结束后的归档，由 services.RecordService 实现
type Archiver interface {
	ArchiveGame(ctx context.Context, roomCode string, result models.GameResult) error
}

// Binder 把玩家当前的连接指向房间，由 session.Manager 实现。
// 在房间循环内调用，加入成功前不会收到该房间的广播。
type Binder interface {
	BindRoom(playerID, code string) (previous string)
}

type nopObserver struct{}

func (nopObserver) RoomOpened()                                           {}
func (nopObserver) RoomClosed()                                           {}
func (nopObserver) IntentHandled(models.IntentKind, time.Duration, error) {}
func (nopObserver) GameFinished(models.Team)                              {}

// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/mafia/models"
)

// EventSink 事件出口，由传输层实现。状态机只依赖这个接口，不持有连接。
type EventSink interface {
	PublishToRoom(roomCode string, ev models.Event)
	PublishToPlayer(roomCode, playerID string, ev models.Event)
}

// Scheduler 阶段计时器。fn 必须在房间的串行上下文中执行，
// 由实现方负责把回调投递回房间循环。
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func())
}

// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/network"
	"github.com/wfunc/mafia/session"
)

// 基于会话的广播器，实现 state.EventSink。
// 房间事件发给房间内所有在线会话，私有事件只发给对应玩家。
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func (b *SessionBroadcaster) PublishToRoom(code string, ev models.Event) {
	data, ok := encode(ev)
	if !ok {
		return
	}
	for _, s := range b.sessionManager.InRoom(code) {
		if err := s.Send(network.MsgTypeRoomEvent, data); err != nil {
			// 断开的连接由读协程清理
			logger.Log.Debugf("房间 %s 向会话 %s 发送 %s 失败: %v", code, s.GetID(), ev.Type, err)
		}
	}
}

func (b *SessionBroadcaster) PublishToPlayer(code, playerID string, ev models.Event) {
	s, ok := b.sessionManager.GetByPlayerID(playerID)
	if !ok {
		// 离线玩家重连时会重新同步
		return
	}
	data, ok := encode(ev)
	if !ok {
		return
	}
	if err := s.Send(network.MsgTypePlayerEvent, data); err != nil {
		logger.Log.Debugf("房间 %s 向玩家 %s 发送 %s 失败: %v", code, playerID, ev.Type, err)
	}
}

func encode(ev models.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Errorf("事件 %s 编码失败: %v", ev.Type, err)
		return nil, false
	}
	return data, true
}

// Delivery 一条已投递的事件，PlayerID 为空表示房间广播
type Delivery struct {
	Room     string
	PlayerID string
	Event    models.Event
}

// Recorder 内存中的事件记录，用于离线模式和测试
type Recorder struct {
	deliveries []Delivery
	mutex      sync.Mutex
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PublishToRoom(code string, ev models.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.deliveries = append(r.deliveries, Delivery{Room: code, Event: ev})
}

func (r *Recorder) PublishToPlayer(code, playerID string, ev models.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.deliveries = append(r.deliveries, Delivery{Room: code, PlayerID: playerID, Event: ev})
}

// Deliveries 返回所有记录的副本
func (r *Recorder) Deliveries() []Delivery {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Drain 取出并清空记录
func (r *Recorder) Drain() []Delivery {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := r.deliveries
	r.deliveries = nil
	return out
}

// VisibleTo 玩家能看到的事件：房间广播加上发给该玩家的私有事件
func (r *Recorder) VisibleTo(playerID string) []models.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []models.Event
	for _, d := range r.deliveries {
		if d.PlayerID == "" || d.PlayerID == playerID {
			out = append(out, d.Event)
		}
	}
	return out
}

// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/mafia/network"
	"golang.org/x/time/rate"
)

// Session 一条客户端连接。PlayerID 跨连接稳定，用于重连。
type Session struct {
	ID         string
	Conn       network.Connection
	PlayerID   string
	CreatedAt  time.Time
	LastActive time.Time

	roomCode string
	limiter  *rate.Limiter
	mutex    sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
}

// SetRateLimit 每秒允许的消息数与突发量
func (s *Session) SetRateLimit(perSecond float64, burst int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if perSecond <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Allow 消息是否在速率限制之内
func (s *Session) Allow() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.LastActive = time.Now()
	return s.limiter.Allow()
}

func (s *Session) RoomCode() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomCode
}

func (s *Session) SetRoomCode(code string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomCode = code
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器，按会话 id 和玩家 id 双索引
type Manager struct {
	sessions map[string]*Session
	byPlayer map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]*Session),
	}
}

// Add 注册会话。同一玩家已有会话时返回旧会话，由调用方关闭（顶号）。
func (m *Manager) Add(session *Session) (replaced *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
	if session.PlayerID == "" {
		return nil
	}
	if old, ok := m.byPlayer[session.PlayerID]; ok && old != session {
		replaced = old
		delete(m.sessions, old.ID)
	}
	m.byPlayer[session.PlayerID] = session
	return replaced
}

// Remove 移除会话，返回是否仍是该玩家的当前会话
func (m *Manager) Remove(sessionID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	delete(m.sessions, sessionID)
	if m.byPlayer[session.PlayerID] == session {
		delete(m.byPlayer, session.PlayerID)
		return true
	}
	return false
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByPlayerID(playerID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.byPlayer[playerID]
	return session, exists
}

// BindRoom 设置玩家当前会话的房间码，返回原来的值，玩家不在线时为空
func (m *Manager) BindRoom(playerID, code string) string {
	m.mutex.RLock()
	session, exists := m.byPlayer[playerID]
	m.mutex.RUnlock()
	if !exists {
		return ""
	}
	previous := session.RoomCode()
	session.SetRoomCode(code)
	return previous
}

// InRoom 当前在房间中的所有会话
func (m *Manager) InRoom(code string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.byPlayer {
		if session.RoomCode() == code {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll 关闭所有连接，读协程随后会自行移除会话
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mutex.RUnlock()

	for _, session := range sessions {
		session.Close()
	}
}

package broadcast

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/network"
	"github.com/wfunc/mafia/session"
)

type sent struct {
	msgID uint16
	data  []byte
}

// MockConnection 记录发送的包
type MockConnection struct {
	mu      sync.Mutex
	packets []sent
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, sent{msgID: msgID, data: data})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) all() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.packets...)
}

func join(sessions *session.Manager, id, playerID, room string) *MockConnection {
	conn := &MockConnection{}
	s := session.NewSession(id, conn)
	s.PlayerID = playerID
	s.SetRoomCode(room)
	sessions.Add(s)
	return conn
}

func TestSessionBroadcaster_PublishToRoom(t *testing.T) {
	sessions := session.NewManager()
	alice := join(sessions, "s1", "alice", "ROOM1")
	bob := join(sessions, "s2", "bob", "ROOM1")
	other := join(sessions, "s3", "carol", "ROOM2")

	b := NewSessionBroadcaster(sessions)
	b.PublishToRoom("ROOM1", models.Event{
		Type:    models.EventPhaseChanged,
		Room:    "ROOM1",
		Round:   1,
		Payload: models.PhaseChanged{Phase: models.PhaseNight, Round: 1},
	})

	for _, conn := range []*MockConnection{alice, bob} {
		packets := conn.all()
		require.Len(t, packets, 1)
		assert.Equal(t, uint16(network.MsgTypeRoomEvent), packets[0].msgID)

		var ev struct {
			Type    models.EventType    `json:"type"`
			Payload models.PhaseChanged `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(packets[0].data, &ev))
		assert.Equal(t, models.EventPhaseChanged, ev.Type)
		assert.Equal(t, models.PhaseNight, ev.Payload.Phase)
	}
	assert.Empty(t, other.all())
}

func TestSessionBroadcaster_PublishToPlayer(t *testing.T) {
	sessions := session.NewManager()
	alice := join(sessions, "s1", "alice", "ROOM1")
	bob := join(sessions, "s2", "bob", "ROOM1")

	b := NewSessionBroadcaster(sessions)
	b.PublishToPlayer("ROOM1", "alice", models.Event{
		Type:    models.EventDetectiveReport,
		Room:    "ROOM1",
		Payload: models.DetectiveReport{TargetID: "bob", TargetName: "Bob", IsMafia: true},
	})
	// 离线玩家直接忽略
	b.PublishToPlayer("ROOM1", "ghost", models.Event{Type: models.EventError})

	packets := alice.all()
	require.Len(t, packets, 1)
	assert.Equal(t, uint16(network.MsgTypePlayerEvent), packets[0].msgID)
	assert.Contains(t, string(packets[0].data), `"is_mafia":true`)
	assert.Empty(t, bob.all())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.PublishToRoom("ROOM1", models.Event{Type: models.EventLobbyUpdate})
	r.PublishToPlayer("ROOM1", "alice", models.Event{Type: models.EventRoleAssigned})
	r.PublishToPlayer("ROOM1", "bob", models.Event{Type: models.EventRoleAssigned})

	assert.Len(t, r.Deliveries(), 3)
	visible := r.VisibleTo("alice")
	require.Len(t, visible, 2)
	assert.Equal(t, models.EventLobbyUpdate, visible[0].Type)
	assert.Equal(t, models.EventRoleAssigned, visible[1].Type)

	assert.Len(t, r.Drain(), 3)
	assert.Empty(t, r.Deliveries())
}

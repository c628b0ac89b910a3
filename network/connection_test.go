package network

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(MsgTypeIntent, []byte(`{"kind":"castVote"}`))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xC9, 0x00, 0x13}, raw[:4])

	// 尾部多余字节被忽略
	packet, err := Decode(append(raw, 0xFF))
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeIntent), packet.MsgID)
	assert.Equal(t, uint16(19), packet.Length)
	assert.Equal(t, `{"kind":"castVote"}`, string(packet.Data))
}

func TestDecode_ShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, io.ErrShortBuffer)

	_, err = Decode([]byte{0x00, 0x01, 0x00, 0x05, 'a'})
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(MsgTypeRoomEvent, make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	_, err = Encode(MsgTypeRoomEvent, make([]byte, MaxPayloadSize))
	assert.NoError(t, err)
}

// echoServer 把收到的包原样发回
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := NewWSConnection(ws)
		defer conn.Close()
		conn.SetHeartbeat(time.Second)
		for {
			packet, err := conn.ReadPacket()
			if err != nil {
				return
			}
			if err := conn.Send(packet.MsgID, packet.Data); err != nil {
				return
			}
		}
	}))
}

func TestWSConnection_RoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(ws)
	defer client.Close()

	require.NoError(t, client.Send(MsgTypeHeartbeat, nil))
	require.NoError(t, client.Send(MsgTypeJoinRoom, []byte(`{"room":"ABCDE"}`)))

	packet, err := client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeHeartbeat), packet.MsgID)
	assert.Empty(t, packet.Data)

	packet, err = client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeJoinRoom), packet.MsgID)
	assert.Equal(t, `{"room":"ABCDE"}`, string(packet.Data))
}

func TestWSConnection_SendAfterClose(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(ws)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send(MsgTypeHeartbeat, nil), ErrConnectionClosed)
}

func TestWSConnection_SlowClientIsClosed(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	// 不启动写协程，队列只能容纳一个包
	client := &WSConnection{conn: ws, send: make(chan []byte, 1), closeChan: make(chan struct{})}

	require.NoError(t, client.Send(MsgTypeRoomEvent, []byte(`{}`)))
	assert.ErrorIs(t, client.Send(MsgTypePlayerEvent, []byte(`{}`)), ErrSendQueueFull)
	assert.ErrorIs(t, client.Send(MsgTypePlayerEvent, []byte(`{}`)), ErrConnectionClosed)

	_, err = client.ReadPacket()
	assert.Error(t, err, "reads fail once the connection is closed")
}

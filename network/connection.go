// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/mafia/logger"
)

const (
	headerSize     = 4
	MaxPayloadSize = 1<<16 - 1

	sendQueueSize     = 256
	writeWait         = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
)

var (
	ErrPacketTooLarge   = errors.New("packet payload too large")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// Encode 封包: 2字节消息ID + 2字节数据长度 + 数据
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > MaxPayloadSize {
		return nil, ErrPacketTooLarge
	}
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[headerSize:], data)
	return packet, nil
}

// Decode 解包，多余的尾部字节被忽略
func Decode(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < headerSize+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[headerSize : headerSize+int(length)],
	}, nil
}

// WSConnection 写操作由单独的协程完成，Send 只入队。
// 队列满时关闭连接，客户端重连后由房间重新同步状态。
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	heartbeat time.Duration
	mutex     sync.Mutex
	closeChan chan struct{}
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		closeChan: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	go c.writeLoop()
	return c
}

func (c *WSConnection) Send(msgID uint16, data []byte) error {
	packet, err := Encode(msgID, data)
	if err != nil {
		return err
	}

	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- packet:
		return nil
	default:
		logger.Log.Warnf("连接 %s 发送队列已满，关闭连接", c.RemoteAddr())
		c.Close()
		return ErrSendQueueFull
	}
}

func (c *WSConnection) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case packet := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				logger.Log.Debugf("连接 %s 写入失败: %v", c.RemoteAddr(), err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// SetHeartbeat 两个心跳周期内没有任何消息视为断线
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.mutex.Lock()
	c.heartbeat = interval
	c.mutex.Unlock()
	c.extendDeadline()
}

func (c *WSConnection) extendDeadline() {
	c.mutex.Lock()
	interval := c.heartbeat
	c.mutex.Unlock()
	if interval > 0 {
		c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	}
}

func (c *WSConnection) pingPeriod() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.heartbeat > 0 {
		return c.heartbeat
	}
	return defaultPingPeriod
}

// Close 可重复调用
func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

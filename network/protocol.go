package network

// 消息类型，客户端与服务端共用
const (
	MsgTypeHeartbeat = 1

	// 房间
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeCreateRoom = 103
	MsgTypeWelcome    = 104 // 服务端下发的玩家 id

	// 游戏意图，负载为 JSON 编码的 models.Intent
	MsgTypeIntent = 201

	// 游戏事件，负载为 JSON 编码的 models.Event
	MsgTypeRoomEvent   = 301
	MsgTypePlayerEvent = 302
)

// Welcome 连接建立后发给客户端，重连时带上同一个 PlayerID
type Welcome struct {
	PlayerID string `json:"player_id"`
	RoomCode string `json:"room,omitempty"`
}

// JoinRequest MsgTypeJoinRoom / MsgTypeCreateRoom 的负载
type JoinRequest struct {
	RoomCode string `json:"room"`
	Name     string `json:"name"`
}

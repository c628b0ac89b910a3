package models

// IntentKind 客户端意图类型
type IntentKind string

const (
	IntentJoin              IntentKind = "createOrJoinRoom"
	IntentSetReady          IntentKind = "setReady"
	IntentUpdateRoleConfig  IntentKind = "updateRoleConfig"
	IntentStartGame         IntentKind = "startGame"
	IntentAcknowledgeRole   IntentKind = "acknowledgeRole"
	IntentAdvancePhase      IntentKind = "advancePhase"
	IntentSubmitNightAction IntentKind = "submitNightAction"
	IntentProcessNight      IntentKind = "processNight"
	IntentStartVoting       IntentKind = "startVoting"
	IntentCastVote          IntentKind = "castVote"
	IntentProcessVotes      IntentKind = "processVotes"
	IntentReturnToLobby     IntentKind = "returnToLobby"
	IntentLeaveRoom         IntentKind = "leaveRoom"
)

// HostOnly 只有房主能发起的意图
func (k IntentKind) HostOnly() bool {
	switch k {
	case IntentUpdateRoleConfig, IntentStartGame, IntentAdvancePhase,
		IntentProcessNight, IntentStartVoting, IntentProcessVotes, IntentReturnToLobby:
		return true
	}
	return false
}

// Intent 一次玩家请求，RoomCode 和 ActorID 由服务端根据会话填写
type Intent struct {
	Kind     IntentKind  `json:"kind"`
	RoomCode string      `json:"room,omitempty"`
	ActorID  string      `json:"actor_id,omitempty"`
	Name     string      `json:"name,omitempty"`
	Ready    bool        `json:"ready,omitempty"`
	Config   *RoleConfig `json:"config,omitempty"`
	TargetID string      `json:"target_id,omitempty"`
}

package models

import "time"

// EventType 服务端下发的事件类型
type EventType string

const (
	EventLobbyUpdate       EventType = "lobbyUpdate"
	EventRoleAssigned      EventType = "roleAssigned"
	EventMafiaMembers      EventType = "mafiaMembers"
	EventPhaseChanged      EventType = "phaseChanged"
	EventActionRecorded    EventType = "actionRecorded"
	EventMafiaTargetUpdate EventType = "mafiaTargetUpdate"
	EventNightResults      EventType = "nightResults"
	EventDetectiveReport   EventType = "detectiveReport"
	EventVoteUpdate        EventType = "voteUpdate"
	EventVoteResults       EventType = "voteResults"
	EventGameOver          EventType = "gameOver"
	EventError             EventType = "errorMsg"
)

// Event 不可变的事件快照，Payload 为下面的某个值类型
type Event struct {
	Type    EventType `json:"type"`
	Room    string    `json:"room"`
	Round   int       `json:"round"`
	Payload any       `json:"payload,omitempty"`
}

type LobbyUpdate struct {
	Phase      Phase        `json:"phase"`
	HostID     string       `json:"host_id"`
	RoleConfig RoleConfig   `json:"role_config"`
	Players    []PlayerView `json:"players"`
}

type RoleAssigned struct {
	Role Role `json:"role"`
}

type MafiaMembers struct {
	Members []PlayerView `json:"members"`
}

type PhaseChanged struct {
	Phase    Phase      `json:"phase"`
	Round    int        `json:"round"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type ActionRecorded struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
}

type MafiaTargetUpdate struct {
	ActorID    string `json:"actor_id"`
	ActorName  string `json:"actor_name"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
}

// NightResults Eliminated 为空表示无人死亡
type NightResults struct {
	Eliminated *PlayerView `json:"eliminated"`
}

type DetectiveReport struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
	IsMafia    bool   `json:"is_mafia"`
}

type VoteUpdate struct {
	Counts   map[string]int `json:"counts"`
	Voted    int            `json:"voted"`
	Eligible int            `json:"eligible"`
}

type VoteResults struct {
	Eliminated *PlayerView    `json:"eliminated"`
	Tie        bool           `json:"tie"`
	Counts     map[string]int `json:"counts"`
}

type GameOver struct {
	GameResult
}

type ErrorMsg struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// models/models.go
package models

import (
	"fmt"
	"time"
)

// Team 阵营
type Team string

const (
	TeamMafia Team = "mafia"
	TeamTown  Team = "town"
)

// RoleID 角色标识
type RoleID string

const (
	RoleMafia     RoleID = "mafia"
	RoleDetective RoleID = "detective"
	RoleDoctor    RoleID = "doctor"
	RoleVillager  RoleID = "villager"
)

// Role 角色定义，由 roles 包统一提供，不可修改
type Role struct {
	ID          RoleID `json:"id"`
	Name        string `json:"name"`
	Team        Team   `json:"team"`
	Description string `json:"description"`
}

// IsSpecial 夜晚是否有行动
func (r *Role) IsSpecial() bool {
	return r != nil && r.ID != RoleVillager
}

// Phase 对局阶段
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseRoleReveal Phase = "roleReveal"
	PhaseNight      Phase = "night"
	PhaseDay        Phase = "day"
	PhaseVoting     Phase = "voting"
	PhaseGameOver   Phase = "gameOver"
)

// Player 房间内的玩家，ID 为客户端持有的重连标识
type Player struct {
	ID             string
	Name           string
	Role           *Role
	Alive          bool
	Ready          bool
	Connected      bool
	JoinedAt       time.Time
	DisconnectedAt time.Time
}

// Team 由角色推导，未分配角色时为空
func (p *Player) Team() Team {
	if p.Role == nil {
		return ""
	}
	return p.Role.Team
}

func (p *Player) IsMafia() bool {
	return p.Team() == TeamMafia
}

// View 生成对外快照，revealRole 控制是否暴露身份
func (p *Player) View(revealRole bool) PlayerView {
	v := PlayerView{
		ID:        p.ID,
		Name:      p.Name,
		Alive:     p.Alive,
		Ready:     p.Ready,
		Connected: p.Connected,
	}
	if revealRole && p.Role != nil {
		v.Role = p.Role.ID
		v.Team = p.Role.Team
	}
	return v
}

// PlayerView 玩家信息快照（用于事件和记录）
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Alive     bool   `json:"alive"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Host      bool   `json:"host,omitempty"`
	Role      RoleID `json:"role,omitempty"`
	Team      Team   `json:"team,omitempty"`
}

// RoleConfig 房主配置的特殊角色数量，其余为村民
type RoleConfig struct {
	Mafia     int `json:"mafia"`
	Detective int `json:"detective"`
	Doctor    int `json:"doctor"`
}

func DefaultRoleConfig() RoleConfig {
	return RoleConfig{Mafia: 1, Detective: 1, Doctor: 1}
}

func (c RoleConfig) Specials() int {
	return c.Mafia + c.Detective + c.Doctor
}

// Validate 校验配置能否用于 players 名玩家
func (c RoleConfig) Validate(players int) error {
	if c.Mafia < 1 {
		return fmt.Errorf("%w: at least one mafia is required", ErrInvalidConfiguration)
	}
	if c.Detective < 0 || c.Doctor < 0 {
		return fmt.Errorf("%w: role counts cannot be negative", ErrInvalidConfiguration)
	}
	if c.Specials() > players {
		return fmt.Errorf("%w: %d special roles for %d players", ErrInvalidConfiguration, c.Specials(), players)
	}
	return nil
}

// LogEntry 对局日志条目，按回合追加
type LogEntry struct {
	Round   int       `json:"round"`
	Phase   Phase     `json:"phase"`
	Kind    string    `json:"kind"`
	Text    string    `json:"text"`
	Private bool      `json:"private,omitempty"`
	At      time.Time `json:"at"`
}

// GameResult 一局结束时的结果
type GameResult struct {
	Winner       Team         `json:"winner"`
	FinalRoster  []PlayerView `json:"final_roster"`
	RoundsPlayed int          `json:"rounds_played"`
	History      []LogEntry   `json:"history,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// GameRecord 归档的游戏记录
type GameRecord struct {
	ID           string       `json:"id"`
	RoomCode     string       `json:"room_code"`
	Winner       Team         `json:"winner"`
	RoundsPlayed int          `json:"rounds_played"`
	Players      []PlayerView `json:"players"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

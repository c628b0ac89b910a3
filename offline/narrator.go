// Package offline 单设备模式：一台设备传递使用，由主持人代为操作所有玩家。
package offline

import (
	"fmt"
	"strconv"

	"github.com/wfunc/mafia/broadcast"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/roles"
	"github.com/wfunc/mafia/state"
)

const localRoom = "LOCAL"

// Narrator 离线主持人，复用联机的状态机，事件保存在内存中。
// 第一名玩家同时是房主，所有推进操作以房主身份执行。
type Narrator struct {
	machine  *state.Machine
	recorder *broadcast.Recorder
	ids      []string
	byName   map[string]string
	roles    map[string]models.Role // 开局时记下，Events 会清空记录
}

// NewNarrator 按 names 顺序入座并直接开局，进入身份揭示阶段
func NewNarrator(names []string, cfg models.RoleConfig, opts ...state.Option) (*Narrator, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no players", models.ErrInvalidConfiguration)
	}
	recorder := broadcast.NewRecorder()
	opts = append([]state.Option{state.WithRequireReady(false)}, opts...)
	n := &Narrator{
		machine:  state.NewMachine(localRoom, recorder, opts...),
		recorder: recorder,
		byName:   make(map[string]string, len(names)),
		roles:    make(map[string]models.Role, len(names)),
	}

	for i, name := range names {
		id := "p" + strconv.Itoa(i+1)
		err := n.machine.Handle(models.Intent{Kind: models.IntentJoin, RoomCode: localRoom, ActorID: id, Name: name})
		if err != nil {
			return nil, err
		}
		n.ids = append(n.ids, id)
	}
	for _, p := range n.Players() {
		n.byName[p.Name] = p.ID
	}

	if err := n.host(models.Intent{Kind: models.IntentUpdateRoleConfig, Config: &cfg}); err != nil {
		return nil, err
	}
	if err := n.host(models.Intent{Kind: models.IntentStartGame}); err != nil {
		return nil, err
	}
	for _, id := range n.ids {
		for _, ev := range recorder.VisibleTo(id) {
			if assigned, ok := ev.Payload.(models.RoleAssigned); ok {
				n.roles[id] = assigned.Role
			}
		}
	}
	return n, nil
}

func (n *Narrator) host(in models.Intent) error {
	in.ActorID = n.machine.HostID()
	return n.act(in)
}

func (n *Narrator) act(in models.Intent) error {
	in.RoomCode = localRoom
	return n.machine.Handle(in)
}

// Players 当前座位表，结束前不公开身份
func (n *Narrator) Players() []models.PlayerView {
	return n.machine.Snapshot().Players
}

// PlayerID 按名字查找玩家
func (n *Narrator) PlayerID(name string) (string, bool) {
	id, ok := n.byName[name]
	return id, ok
}

// RoleOf 玩家被分到的角色，只给拿着设备的这名玩家看
func (n *Narrator) RoleOf(playerID string) (models.Role, bool) {
	role, ok := n.roles[playerID]
	return role, ok
}

// AcknowledgeAll 所有人看过身份后进入第一个夜晚
func (n *Narrator) AcknowledgeAll() error {
	for _, id := range n.ids {
		if n.Phase() != models.PhaseRoleReveal {
			return nil
		}
		if err := n.act(models.Intent{Kind: models.IntentAcknowledgeRole, ActorID: id}); err != nil {
			return err
		}
	}
	return nil
}

// NightAction 记录 actorID 的夜间选择。所有行动齐全时自动结算。
func (n *Narrator) NightAction(actorID, targetID string) error {
	return n.act(models.Intent{Kind: models.IntentSubmitNightAction, ActorID: actorID, TargetID: targetID})
}

// ProcessNight 用已收集的行动结算夜晚
func (n *Narrator) ProcessNight() error {
	return n.host(models.Intent{Kind: models.IntentProcessNight})
}

func (n *Narrator) StartVoting() error {
	return n.host(models.Intent{Kind: models.IntentStartVoting})
}

func (n *Narrator) Vote(voterID, targetID string) error {
	return n.act(models.Intent{Kind: models.IntentCastVote, ActorID: voterID, TargetID: targetID})
}

func (n *Narrator) ProcessVotes() error {
	return n.host(models.Intent{Kind: models.IntentProcessVotes})
}

func (n *Narrator) Phase() models.Phase {
	return n.machine.Phase()
}

func (n *Narrator) Round() int {
	return n.machine.Round()
}

// Result 对局结束后返回结果
func (n *Narrator) Result() (*models.GameResult, bool) {
	snap := n.machine.Snapshot()
	return snap.Result, snap.Result != nil
}

// Events 取出上次调用之后的新事件，包括私有事件
func (n *Narrator) Events() []broadcast.Delivery {
	return n.recorder.Drain()
}

// Journal 完整的对局日志（含私有条目），供主持人查看
func (n *Narrator) Journal() []models.LogEntry {
	return n.machine.Journal().All()
}

// Card 生成器模式下一名玩家的身份牌
type Card struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

// Generate 只发身份牌，不主持对局，牌序与 names 一致
func Generate(names []string, cfg models.RoleConfig, shuffler roles.Shuffler) ([]Card, error) {
	assignments, err := roles.Assign(names, cfg, shuffler)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, len(assignments))
	for i, a := range assignments {
		cards[i] = Card{Name: a.PlayerID, Role: *a.Role}
	}
	return cards, nil
}

package state

import (
	"fmt"
	"time"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/roles"
)

// Timings 各阶段时长，0 表示不计时，只能由房主或条件满足时推进
type Timings struct {
	RoleReveal time.Duration
	Night      time.Duration
	Day        time.Duration
	Voting     time.Duration
}

func (t Timings) For(phase models.Phase) time.Duration {
	switch phase {
	case models.PhaseRoleReveal:
		return t.RoleReveal
	case models.PhaseNight:
		return t.Night
	case models.PhaseDay:
		return t.Day
	case models.PhaseVoting:
		return t.Voting
	}
	return 0
}

type Options struct {
	Timings      Timings
	MinPlayers   int
	RequireReady bool
	Shuffler     roles.Shuffler
	Scheduler    Scheduler
	Now          func() time.Time
	OnGameOver   func(models.GameResult)
}

type Option func(*Options)

func WithTimings(t Timings) Option { return func(o *Options) { o.Timings = t } }

func WithMinPlayers(n int) Option { return func(o *Options) { o.MinPlayers = n } }

func WithRequireReady(v bool) Option { return func(o *Options) { o.RequireReady = v } }

func WithShuffler(s roles.Shuffler) Option { return func(o *Options) { o.Shuffler = s } }

func WithScheduler(s Scheduler) Option { return func(o *Options) { o.Scheduler = s } }

func WithClock(now func() time.Time) Option { return func(o *Options) { o.Now = now } }

// WithGameOverHook 对局结束时回调，在房间串行上下文中执行，不可阻塞
func WithGameOverHook(fn func(models.GameResult)) Option {
	return func(o *Options) { o.OnGameOver = fn }
}

// Machine 单个房间的阶段状态机。所有修改都经过 Handle / Disconnect，
// 调用方负责串行化（见 room 包）。
type Machine struct {
	game   *Game
	sm     *BaseStateMachine
	states map[models.Phase]State
	sink   EventSink
	opts   Options

	epoch     uint64
	stopTimer func()
	deadline  time.Time
}

func NewMachine(code string, sink EventSink, opts ...Option) *Machine {
	o := Options{
		MinPlayers:   3,
		RequireReady: true,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Machine{
		game: newGame(code),
		sink: sink,
		opts: o,
	}
	m.states = map[models.Phase]State{
		models.PhaseLobby:      &lobbyState{phaseBase{id: models.PhaseLobby, m: m}},
		models.PhaseRoleReveal: &roleRevealState{phaseBase{id: models.PhaseRoleReveal, m: m}},
		models.PhaseNight:      &nightState{phaseBase{id: models.PhaseNight, m: m}},
		models.PhaseDay:        &dayState{phaseBase{id: models.PhaseDay, m: m}},
		models.PhaseVoting:     &votingState{phaseBase{id: models.PhaseVoting, m: m}},
		models.PhaseGameOver:   &gameOverState{phaseBase{id: models.PhaseGameOver, m: m}},
	}

	m.sm = NewBaseStateMachine(m.states[models.PhaseLobby])
	m.sm.AddTransition(models.PhaseLobby, models.PhaseRoleReveal, nil)
	m.sm.AddTransition(models.PhaseRoleReveal, models.PhaseNight, nil)
	m.sm.AddTransition(models.PhaseNight, models.PhaseDay, nil)
	m.sm.AddTransition(models.PhaseNight, models.PhaseGameOver, nil)
	m.sm.AddTransition(models.PhaseDay, models.PhaseVoting, nil)
	m.sm.AddTransition(models.PhaseVoting, models.PhaseNight, nil)
	m.sm.AddTransition(models.PhaseVoting, models.PhaseGameOver, nil)
	// 房主可以从任意阶段重置回大厅
	for _, from := range []models.Phase{
		models.PhaseRoleReveal, models.PhaseNight, models.PhaseDay, models.PhaseVoting, models.PhaseGameOver,
	} {
		m.sm.AddTransition(from, models.PhaseLobby, nil)
	}
	return m
}

func (m *Machine) Code() string {
	return m.game.Code
}

func (m *Machine) Phase() models.Phase {
	return m.sm.GetCurrentState().GetID()
}

func (m *Machine) Round() int {
	return m.game.Round
}

func (m *Machine) HostID() string {
	return m.game.HostID
}

func (m *Machine) HasPlayer(id string) bool {
	_, ok := m.game.Players[id]
	return ok
}

func (m *Machine) PlayerCount() int {
	return len(m.game.Players)
}

func (m *Machine) Empty() bool {
	return len(m.game.Players) == 0
}

// IdleSince 所有玩家都离线时返回最近一次断线时间
func (m *Machine) IdleSince() (time.Time, bool) {
	var last time.Time
	for _, p := range m.game.Players {
		if p.Connected {
			return time.Time{}, false
		}
		if p.DisconnectedAt.After(last) {
			last = p.DisconnectedAt
		}
	}
	return last, true
}

// Journal 对局日志
func (m *Machine) Journal() *Journal {
	return m.game.Journal
}

// Handle 处理一次意图。被拒绝时只向发起者发送 errorMsg，房间状态不变。
func (m *Machine) Handle(in models.Intent) error {
	err := m.handle(in)
	if err != nil && in.ActorID != "" {
		m.tell(in.ActorID, models.EventError, models.ErrorMsg{
			Kind:   models.ErrorKind(err),
			Reason: err.Error(),
		})
	}
	return err
}

func (m *Machine) handle(in models.Intent) error {
	switch in.Kind {
	case models.IntentJoin:
		return m.join(in)
	case models.IntentLeaveRoom:
		return m.leave(in.ActorID)
	}

	if _, err := m.game.player(in.ActorID); err != nil {
		return err
	}
	if in.Kind.HostOnly() && in.ActorID != m.game.HostID {
		return fmt.Errorf("%w: only the host can %s", models.ErrIllegalAction, in.Kind)
	}
	if in.Kind == models.IntentReturnToLobby {
		if !m.sm.CanTransition(models.PhaseLobby) {
			return fmt.Errorf("%w: room is already in the lobby", models.ErrIllegalAction)
		}
		return m.transition(models.PhaseLobby)
	}
	return m.sm.GetCurrentState().HandleAction(in)
}

// Disconnect 传输层断开，保留玩家记录以便重连
func (m *Machine) Disconnect(playerID string) {
	p, ok := m.game.Players[playerID]
	if !ok || !p.Connected {
		return
	}
	p.Connected = false
	p.DisconnectedAt = m.opts.Now()
	logger.Log.Infof("房间 %s 玩家 %s 断开连接", m.game.Code, p.Name)
	m.publishLobby()
}

func (m *Machine) join(in models.Intent) error {
	if in.ActorID == "" {
		return fmt.Errorf("%w: missing player id", models.ErrIllegalAction)
	}
	if p, ok := m.game.Players[in.ActorID]; ok {
		p.Connected = true
		p.DisconnectedAt = time.Time{}
		logger.Log.Infof("房间 %s 玩家 %s 重新连接", m.game.Code, p.Name)
		m.publishLobby()
		m.resync(p)
		return nil
	}
	if m.Phase() != models.PhaseLobby {
		return fmt.Errorf("%w: game already in progress", models.ErrIllegalAction)
	}

	name := normalizeName(in.Name)
	if m.game.nameTaken(name) {
		return fmt.Errorf("%w: name %q is already taken", models.ErrIllegalAction, name)
	}
	m.game.addPlayer(in.ActorID, name, m.opts.Now())
	logger.Log.Infof("玩家 %s 加入房间 %s", name, m.game.Code)
	m.publishLobby()
	return nil
}

func (m *Machine) leave(playerID string) error {
	p, err := m.game.player(playerID)
	if err != nil {
		return err
	}
	m.game.removePlayer(playerID)
	logger.Log.Infof("玩家 %s 离开房间 %s", p.Name, m.game.Code)

	if m.Phase() != models.PhaseLobby {
		m.record("playerLeft", fmt.Sprintf("%s left the game", p.Name), false)
	}
	if m.Empty() {
		m.cancelTimer()
		return nil
	}
	m.publishLobby()

	// 离开可能让当前阶段的收集条件满足
	switch m.Phase() {
	case models.PhaseRoleReveal:
		if m.game.allAcknowledged() {
			return m.transition(models.PhaseNight)
		}
	case models.PhaseNight:
		if m.game.nightComplete() {
			return m.resolveNight()
		}
	case models.PhaseVoting:
		if m.game.votingComplete() {
			return m.tallyVotes()
		}
	}
	return nil
}

// resync 重连后补发该玩家需要的私有状态
func (m *Machine) resync(p *models.Player) {
	phase := m.Phase()
	if phase == models.PhaseLobby {
		return
	}
	m.tell(p.ID, models.EventPhaseChanged, m.phaseChangedPayload())
	if p.Role != nil {
		m.tell(p.ID, models.EventRoleAssigned, models.RoleAssigned{Role: *p.Role})
		if p.IsMafia() {
			m.tell(p.ID, models.EventMafiaMembers, m.mafiaMembers())
		}
	}
	switch phase {
	case models.PhaseNight:
		m.resyncNight(p)
	case models.PhaseVoting:
		m.tell(p.ID, models.EventVoteUpdate, m.voteUpdate())
	case models.PhaseGameOver:
		if m.game.Result != nil {
			m.tell(p.ID, models.EventGameOver, models.GameOver{GameResult: *m.game.Result})
		}
	}
	if report, ok := m.game.reports[p.ID]; ok && phase != models.PhaseNight {
		m.tell(p.ID, models.EventDetectiveReport, report)
	}
}

// resyncNight 补发自己已提交的行动，黑手党还会收到同伴当前的目标
func (m *Machine) resyncNight(p *models.Player) {
	g := m.game
	if a, ok := g.Night.Action(p.ID); ok {
		if target, ok := g.Players[a.TargetID]; ok {
			m.tell(p.ID, models.EventActionRecorded, models.ActionRecorded{TargetID: target.ID, TargetName: target.Name})
		}
	}
	if !p.IsMafia() {
		return
	}
	pick, ok := g.Night.Effective(models.RoleMafia)
	if !ok || pick.ActorID == p.ID {
		return
	}
	actor, okActor := g.Players[pick.ActorID]
	target, okTarget := g.Players[pick.TargetID]
	if okActor && okTarget {
		m.tell(p.ID, models.EventMafiaTargetUpdate, models.MafiaTargetUpdate{
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			TargetID:   target.ID,
			TargetName: target.Name,
		})
	}
}

// transition 切换阶段，先作废旧计时器
func (m *Machine) transition(to models.Phase) error {
	from := m.Phase()
	m.cancelTimer()
	if err := m.sm.ChangeState(m.states[to]); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, to)
	}
	logger.Log.Infof("房间 %s 阶段 %s -> %s (第 %d 回合)", m.game.Code, from, to, m.game.Round)
	return nil
}

func (m *Machine) cancelTimer() {
	m.epoch++
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	m.deadline = time.Time{}
}

// armTimer 为当前阶段启动计时器，旧阶段的回调通过 epoch 失效
func (m *Machine) armTimer(d time.Duration) {
	if d <= 0 || m.opts.Scheduler == nil {
		return
	}
	epoch := m.epoch
	m.deadline = m.opts.Now().Add(d)
	m.stopTimer = m.opts.Scheduler.AfterFunc(d, func() {
		m.expire(epoch)
	})
}

func (m *Machine) expire(epoch uint64) {
	if epoch != m.epoch {
		return
	}
	m.stopTimer = nil
	m.deadline = time.Time{}
	ts, ok := m.sm.GetCurrentState().(timedState)
	if !ok {
		return
	}
	logger.Log.Infof("房间 %s 阶段 %s 超时", m.game.Code, m.Phase())
	if err := ts.OnTimeout(); err != nil {
		logger.Log.Errorf("房间 %s 超时处理失败: %v", m.game.Code, err)
	}
}

func (m *Machine) record(kind, text string, private bool) {
	m.game.Journal.Append(models.LogEntry{
		Round:   m.game.Round,
		Phase:   m.Phase(),
		Kind:    kind,
		Text:    text,
		Private: private,
		At:      m.opts.Now(),
	})
}

func (m *Machine) event(t models.EventType, payload any) models.Event {
	return models.Event{Type: t, Room: m.game.Code, Round: m.game.Round, Payload: payload}
}

func (m *Machine) publish(t models.EventType, payload any) {
	if m.sink == nil {
		return
	}
	m.sink.PublishToRoom(m.game.Code, m.event(t, payload))
}

func (m *Machine) tell(playerID string, t models.EventType, payload any) {
	if m.sink == nil {
		return
	}
	m.sink.PublishToPlayer(m.game.Code, playerID, m.event(t, payload))
}

func (m *Machine) publishLobby() {
	m.publish(models.EventLobbyUpdate, models.LobbyUpdate{
		Phase:      m.Phase(),
		HostID:     m.game.HostID,
		RoleConfig: m.game.Config,
		Players:    m.game.roster(m.Phase() == models.PhaseGameOver),
	})
}

func (m *Machine) phaseChangedPayload() models.PhaseChanged {
	pc := models.PhaseChanged{Phase: m.Phase(), Round: m.game.Round}
	if !m.deadline.IsZero() {
		d := m.deadline
		pc.Deadline = &d
	}
	return pc
}

func (m *Machine) mafiaMembers() models.MafiaMembers {
	var members []models.PlayerView
	for _, p := range m.game.mafia() {
		members = append(members, p.View(true))
	}
	return models.MafiaMembers{Members: members}
}

func (m *Machine) voteUpdate() models.VoteUpdate {
	counts := make(map[string]int)
	for voter, target := range m.game.Votes {
		if v, ok := m.game.Players[voter]; ok && v.Alive {
			counts[target]++
		}
	}
	return models.VoteUpdate{
		Counts:   counts,
		Voted:    len(m.game.Votes),
		Eligible: len(m.game.living()),
	}
}

// Snapshot 房间的公开快照，身份只在结束后公开
type Snapshot struct {
	Code       string              `json:"code"`
	Phase      models.Phase        `json:"phase"`
	Round      int                 `json:"round"`
	HostID     string              `json:"host_id"`
	RoleConfig models.RoleConfig   `json:"role_config"`
	Players    []models.PlayerView `json:"players"`
	Deadline   *time.Time          `json:"deadline,omitempty"`
	Result     *models.GameResult  `json:"result,omitempty"`
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Code:       m.game.Code,
		Phase:      m.Phase(),
		Round:      m.game.Round,
		HostID:     m.game.HostID,
		RoleConfig: m.game.Config,
		Players:    m.game.roster(m.Phase() == models.PhaseGameOver),
		Deadline:   m.phaseChangedPayload().Deadline,
	}
	if m.game.Result != nil {
		r := *m.game.Result
		s.Result = &r
	}
	return s
}

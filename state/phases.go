package state

import (
	"fmt"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/roles"
	"github.com/wfunc/mafia/rules"
)

// 阶段状态基础结构
type phaseBase struct {
	id models.Phase
	m  *Machine
}

func (s *phaseBase) GetID() models.Phase {
	return s.id
}

// OnEnter 启动阶段计时器并广播阶段变化
func (s *phaseBase) OnEnter() {
	s.m.armTimer(s.m.opts.Timings.For(s.id))
	s.m.publish(models.EventPhaseChanged, s.m.phaseChangedPayload())
}

func (s *phaseBase) OnExit() {}

func (s *phaseBase) HandleAction(in models.Intent) error {
	return s.reject(in)
}

func (s *phaseBase) reject(in models.Intent) error {
	return fmt.Errorf("%w: %s is not allowed during %s", models.ErrIllegalAction, in.Kind, s.id)
}

// 大厅
type lobbyState struct {
	phaseBase
}

func (s *lobbyState) OnEnter() {
	g := s.m.game
	g.resetForLobby()
	if len(g.Players) == 0 {
		return
	}
	s.phaseBase.OnEnter()
	s.m.publishLobby()
}

func (s *lobbyState) HandleAction(in models.Intent) error {
	g := s.m.game
	switch in.Kind {
	case models.IntentSetReady:
		g.Players[in.ActorID].Ready = in.Ready
		s.m.publishLobby()
		return nil

	case models.IntentUpdateRoleConfig:
		if in.Config == nil {
			return fmt.Errorf("%w: missing role config", models.ErrIllegalAction)
		}
		if err := in.Config.Validate(len(g.Players)); err != nil {
			return err
		}
		g.Config = *in.Config
		s.m.publishLobby()
		return nil

	case models.IntentStartGame:
		return s.start()
	}
	return s.reject(in)
}

func (s *lobbyState) start() error {
	g := s.m.game
	if len(g.Players) < s.m.opts.MinPlayers {
		return fmt.Errorf("%w: need at least %d players, have %d",
			models.ErrInvalidConfiguration, s.m.opts.MinPlayers, len(g.Players))
	}
	if s.m.opts.RequireReady {
		for _, id := range g.Order {
			if id != g.HostID && !g.Players[id].Ready {
				return fmt.Errorf("%w: %s is not ready", models.ErrIllegalAction, g.Players[id].Name)
			}
		}
	}

	assignments, err := roles.Assign(g.Order, g.Config, s.m.opts.Shuffler)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		p := g.Players[a.PlayerID]
		p.Role = a.Role
		p.Alive = true
	}
	g.Round = 1
	g.StartedAt = s.m.opts.Now()
	s.m.record("gameStarted", fmt.Sprintf("game started with %d players", len(g.Players)), false)
	logger.Log.Infof("房间 %s 开始游戏，%d 名玩家，角色 %v", g.Code, len(g.Players), roles.Count(assignments))
	return s.m.transition(models.PhaseRoleReveal)
}

// 身份揭示
type roleRevealState struct {
	phaseBase
}

func (s *roleRevealState) OnEnter() {
	s.phaseBase.OnEnter()
	g := s.m.game
	clear(g.Acks)

	members := s.m.mafiaMembers()
	for _, id := range g.Order {
		p := g.Players[id]
		s.m.tell(id, models.EventRoleAssigned, models.RoleAssigned{Role: *p.Role})
		if p.IsMafia() {
			s.m.tell(id, models.EventMafiaMembers, members)
		}
		s.m.record("roleAssigned", fmt.Sprintf("%s is %s", p.Name, p.Role.Name), true)
	}
}

func (s *roleRevealState) HandleAction(in models.Intent) error {
	switch in.Kind {
	case models.IntentAcknowledgeRole:
		s.m.game.Acks[in.ActorID] = true
		if s.m.game.allAcknowledged() {
			return s.m.transition(models.PhaseNight)
		}
		return nil
	case models.IntentAdvancePhase:
		return s.m.transition(models.PhaseNight)
	}
	return s.reject(in)
}

func (s *roleRevealState) OnTimeout() error {
	return s.m.transition(models.PhaseNight)
}

// 夜晚
type nightState struct {
	phaseBase
}

func (s *nightState) OnEnter() {
	g := s.m.game
	g.Night.Reset()
	g.nightDetectives = g.nightDetectives[:0]
	clear(g.reports)
	for _, p := range g.living() {
		if p.Role.ID == models.RoleDetective {
			g.nightDetectives = append(g.nightDetectives, p.ID)
		}
	}
	s.phaseBase.OnEnter()
}

func (s *nightState) HandleAction(in models.Intent) error {
	switch in.Kind {
	case models.IntentSubmitNightAction:
		if err := s.submit(in); err != nil {
			return err
		}
		if s.m.game.nightComplete() {
			return s.m.resolveNight()
		}
		return nil
	case models.IntentProcessNight, models.IntentAdvancePhase:
		return s.m.resolveNight()
	}
	return s.reject(in)
}

func (s *nightState) OnTimeout() error {
	return s.m.resolveNight()
}

// submit 在提交时校验目标合法性
func (s *nightState) submit(in models.Intent) error {
	g := s.m.game
	actor := g.Players[in.ActorID]
	if !actor.Alive {
		return fmt.Errorf("%w: dead players cannot act", models.ErrIllegalAction)
	}
	if !actor.Role.IsSpecial() {
		return fmt.Errorf("%w: %s has no night action", models.ErrIllegalAction, actor.Role.Name)
	}
	if in.TargetID == "" {
		return fmt.Errorf("%w: missing target", models.ErrIllegalAction)
	}
	target, err := g.player(in.TargetID)
	if err != nil {
		return err
	}
	if !target.Alive {
		return fmt.Errorf("%w: %s is already dead", models.ErrIllegalAction, target.Name)
	}
	switch actor.Role.ID {
	case models.RoleDetective, models.RoleDoctor:
		if target.ID == actor.ID {
			return fmt.Errorf("%w: %s cannot target themselves", models.ErrIllegalAction, actor.Role.Name)
		}
	case models.RoleMafia:
		if target.IsMafia() {
			return fmt.Errorf("%w: mafia cannot target a mafia member", models.ErrIllegalAction)
		}
	}

	g.Night.Record(actor.ID, actor.Role.ID, target.ID)
	s.m.record("nightAction", fmt.Sprintf("%s (%s) chose %s", actor.Name, actor.Role.Name, target.Name), true)
	s.m.tell(actor.ID, models.EventActionRecorded, models.ActionRecorded{
		TargetID:   target.ID,
		TargetName: target.Name,
	})
	if actor.IsMafia() {
		update := models.MafiaTargetUpdate{
			ActorID:    actor.ID,
			ActorName:  actor.Name,
			TargetID:   target.ID,
			TargetName: target.Name,
		}
		for _, p := range g.mafia() {
			if p.Alive && p.ID != actor.ID {
				s.m.tell(p.ID, models.EventMafiaTargetUpdate, update)
			}
		}
	}
	return nil
}

// resolveNight 结算夜晚并进入白天或结束
func (m *Machine) resolveNight() error {
	g := m.game
	out := rules.ResolveNight(g.Night, g.Players)

	if out.Report != nil {
		target := g.Players[out.Report.TargetID]
		report := models.DetectiveReport{
			TargetID:   target.ID,
			TargetName: target.Name,
			IsMafia:    out.Report.IsMafia,
		}
		for _, id := range g.nightDetectives {
			if _, ok := g.Players[id]; ok {
				g.reports[id] = report
				m.tell(id, models.EventDetectiveReport, report)
			}
		}
		verdict := "innocent"
		if report.IsMafia {
			verdict = "mafia"
		}
		m.record("investigation", fmt.Sprintf("%s was found %s", target.Name, verdict), true)
	}
	if out.MarkedID != "" && out.MarkedID == out.ProtectedID {
		if p, ok := g.Players[out.ProtectedID]; ok {
			m.record("saved", fmt.Sprintf("%s was saved by the doctor", p.Name), true)
		}
	}

	results := models.NightResults{}
	if out.Killed != "" {
		victim := g.Players[out.Killed]
		victim.Alive = false
		v := victim.View(true)
		results.Eliminated = &v
		m.record("nightKill", fmt.Sprintf("%s (%s) was killed in the night", victim.Name, victim.Role.Name), false)
	} else {
		m.record("nightKill", "no one died in the night", false)
	}
	g.Night.Reset()
	m.publish(models.EventNightResults, results)

	if winner, over := rules.EvaluateWin(g.Players); over {
		return m.finish(winner)
	}
	return m.transition(models.PhaseDay)
}

// 白天讨论
type dayState struct {
	phaseBase
}

func (s *dayState) HandleAction(in models.Intent) error {
	switch in.Kind {
	case models.IntentStartVoting, models.IntentAdvancePhase:
		return s.m.transition(models.PhaseVoting)
	}
	return s.reject(in)
}

func (s *dayState) OnTimeout() error {
	return s.m.transition(models.PhaseVoting)
}

// 投票
type votingState struct {
	phaseBase
}

func (s *votingState) OnEnter() {
	clear(s.m.game.Votes)
	s.phaseBase.OnEnter()
}

func (s *votingState) HandleAction(in models.Intent) error {
	switch in.Kind {
	case models.IntentCastVote:
		if err := s.cast(in); err != nil {
			return err
		}
		if s.m.game.votingComplete() {
			return s.m.tallyVotes()
		}
		return nil
	case models.IntentProcessVotes, models.IntentAdvancePhase:
		return s.m.tallyVotes()
	}
	return s.reject(in)
}

func (s *votingState) OnTimeout() error {
	return s.m.tallyVotes()
}

func (s *votingState) cast(in models.Intent) error {
	g := s.m.game
	voter := g.Players[in.ActorID]
	if !voter.Alive {
		return fmt.Errorf("%w: dead players cannot vote", models.ErrIllegalAction)
	}
	if in.TargetID == "" {
		return fmt.Errorf("%w: missing target", models.ErrIllegalAction)
	}
	target, err := g.player(in.TargetID)
	if err != nil {
		return err
	}
	if !target.Alive {
		return fmt.Errorf("%w: %s is already dead", models.ErrIllegalAction, target.Name)
	}
	if target.ID == voter.ID {
		return fmt.Errorf("%w: cannot vote for yourself", models.ErrIllegalAction)
	}

	g.Votes[voter.ID] = target.ID
	s.m.publish(models.EventVoteUpdate, s.m.voteUpdate())
	return nil
}

// tallyVotes 统计投票，平票无人出局
func (m *Machine) tallyVotes() error {
	g := m.game
	out := rules.Tally(g.Votes, g.Players)

	results := models.VoteResults{Tie: out.Tie, Counts: out.Counts}
	switch {
	case out.Eliminated != "":
		p := g.Players[out.Eliminated]
		p.Alive = false
		v := p.View(true)
		results.Eliminated = &v
		m.record("voteResult", fmt.Sprintf("%s (%s) was voted out", p.Name, p.Role.Name), false)
	case out.Tie:
		m.record("voteResult", "the vote was tied, no one was eliminated", false)
	default:
		m.record("voteResult", "no votes were cast", false)
	}
	clear(g.Votes)
	m.publish(models.EventVoteResults, results)

	if winner, over := rules.EvaluateWin(g.Players); over {
		return m.finish(winner)
	}
	g.Round++
	return m.transition(models.PhaseNight)
}

// finish 记录结果并进入结束阶段
func (m *Machine) finish(winner models.Team) error {
	g := m.game
	m.record("gameOver", fmt.Sprintf("%s wins", winner), false)
	g.Result = &models.GameResult{
		Winner:       winner,
		FinalRoster:  g.roster(true),
		RoundsPlayed: g.Round,
		History:      g.Journal.All(),
		StartedAt:    g.StartedAt,
		FinishedAt:   m.opts.Now(),
	}
	logger.Log.Infof("房间 %s 游戏结束，%s 获胜，共 %d 回合", g.Code, winner, g.Round)
	return m.transition(models.PhaseGameOver)
}

// 游戏结束
type gameOverState struct {
	phaseBase
}

func (s *gameOverState) OnEnter() {
	s.phaseBase.OnEnter()
	result := *s.m.game.Result
	s.m.publish(models.EventGameOver, models.GameOver{GameResult: result})
	if s.m.opts.OnGameOver != nil {
		s.m.opts.OnGameOver(result)
	}
}

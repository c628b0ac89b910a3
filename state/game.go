package state

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/rules"
)

const (
	defaultPlayerName = "Player"
	maxNameLength     = 24
)

// Game 房间内的对局数据，只能通过 Machine 修改
type Game struct {
	Code      string
	Players   map[string]*models.Player
	Order     []string // 加入顺序
	HostID    string
	Config    models.RoleConfig
	Round     int
	Night     *rules.NightBook
	Votes     map[string]string // voterID -> targetID
	Acks      map[string]bool
	Journal   *Journal
	Result    *models.GameResult
	StartedAt time.Time

	// 夜晚开始时存活的侦探，调查结果只发给他们
	nightDetectives []string
	// 本回合的调查结果，重连时补发
	reports map[string]models.DetectiveReport
}

func newGame(code string) *Game {
	return &Game{
		Code:    code,
		Players: make(map[string]*models.Player),
		Config:  models.DefaultRoleConfig(),
		Night:   rules.NewNightBook(),
		Votes:   make(map[string]string),
		Acks:    make(map[string]bool),
		Journal: NewJournal(),
		reports: make(map[string]models.DetectiveReport),
	}
}

// normalizeName 去除首尾空白，空名使用默认名，超长截断
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultPlayerName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}

func (g *Game) nameTaken(name string) bool {
	for _, p := range g.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (g *Game) addPlayer(id, name string, now time.Time) *models.Player {
	p := &models.Player{
		ID:        id,
		Name:      name,
		Alive:     true,
		Connected: true,
		JoinedAt:  now,
	}
	g.Players[id] = p
	g.Order = append(g.Order, id)
	if g.HostID == "" {
		g.HostID = id
	}
	return p
}

func (g *Game) removePlayer(id string) {
	delete(g.Players, id)
	for i, pid := range g.Order {
		if pid == id {
			g.Order = append(g.Order[:i], g.Order[i+1:]...)
			break
		}
	}
	g.Night.Forget(id)
	delete(g.Votes, id)
	delete(g.Acks, id)
	if g.HostID == id {
		g.HostID = g.nextHost()
	}
}

// nextHost 按加入顺序选择下一位房主，优先在线玩家
func (g *Game) nextHost() string {
	for _, id := range g.Order {
		if g.Players[id].Connected {
			return id
		}
	}
	if len(g.Order) > 0 {
		return g.Order[0]
	}
	return ""
}

func (g *Game) player(id string) (*models.Player, error) {
	p, ok := g.Players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %s is not in room %s", models.ErrNotFound, id, g.Code)
	}
	return p, nil
}

// roster 按加入顺序生成快照
func (g *Game) roster(revealRoles bool) []models.PlayerView {
	out := make([]models.PlayerView, 0, len(g.Order))
	for _, id := range g.Order {
		v := g.Players[id].View(revealRoles)
		v.Host = id == g.HostID
		out = append(out, v)
	}
	return out
}

func (g *Game) living() []*models.Player {
	var out []*models.Player
	for _, id := range g.Order {
		if p := g.Players[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (g *Game) mafia() []*models.Player {
	var out []*models.Player
	for _, id := range g.Order {
		if p := g.Players[id]; p.IsMafia() {
			out = append(out, p)
		}
	}
	return out
}

// nightComplete 所有存活的特殊角色都已提交
func (g *Game) nightComplete() bool {
	for _, p := range g.living() {
		if p.Role.IsSpecial() && !g.Night.Submitted(p.ID) {
			return false
		}
	}
	return true
}

func (g *Game) votingComplete() bool {
	for _, p := range g.living() {
		if _, ok := g.Votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

func (g *Game) allAcknowledged() bool {
	for _, id := range g.Order {
		if !g.Acks[id] {
			return false
		}
	}
	return true
}

// resetForLobby 清空身份和对局状态，保留玩家与配置
func (g *Game) resetForLobby() {
	for _, p := range g.Players {
		p.Role = nil
		p.Alive = true
		p.Ready = false
	}
	g.Round = 0
	g.Night.Reset()
	clear(g.Votes)
	clear(g.Acks)
	g.Journal = NewJournal()
	g.Result = nil
	g.nightDetectives = nil
	clear(g.reports)
	g.StartedAt = time.Time{}
}

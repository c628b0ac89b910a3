package rules

import (
	"github.com/wfunc/mafia/models"
)

// NightAction 夜晚行动，Seq 为到达顺序
type NightAction struct {
	ActorID  string
	Role     models.RoleID
	TargetID string
	Seq      uint64
}

// NightBook 收集当晚行动。每名玩家只保留最后一次提交，
// 同一类别中以最后到达的提交为准。
type NightBook struct {
	byActor map[string]NightAction
	seq     uint64
}

func NewNightBook() *NightBook {
	return &NightBook{byActor: make(map[string]NightAction)}
}

// Record 记录或替换 actorID 的行动
func (b *NightBook) Record(actorID string, role models.RoleID, targetID string) NightAction {
	b.seq++
	a := NightAction{ActorID: actorID, Role: role, TargetID: targetID, Seq: b.seq}
	b.byActor[actorID] = a
	return a
}

// Forget 移除某名玩家的行动（离开房间时）
func (b *NightBook) Forget(actorID string) {
	delete(b.byActor, actorID)
}

func (b *NightBook) Submitted(actorID string) bool {
	_, ok := b.byActor[actorID]
	return ok
}

// Action 返回 actorID 当晚的行动
func (b *NightBook) Action(actorID string) (NightAction, bool) {
	a, ok := b.byActor[actorID]
	return a, ok
}

func (b *NightBook) Len() int {
	return len(b.byActor)
}

// Effective 返回某类别最终生效的行动
func (b *NightBook) Effective(role models.RoleID) (NightAction, bool) {
	var (
		best  NightAction
		found bool
	)
	for _, a := range b.byActor {
		if a.Role != role {
			continue
		}
		if !found || a.Seq > best.Seq {
			best = a
			found = true
		}
	}
	return best, found
}

// Reset 清空，进入新的夜晚时调用
func (b *NightBook) Reset() {
	clear(b.byActor)
}

// Investigation 侦探调查结果
type Investigation struct {
	DetectiveID string
	TargetID    string
	IsMafia     bool
}

// NightOutcome 夜晚结算结果，Killed 为空表示无人死亡
type NightOutcome struct {
	ProtectedID string
	MarkedID    string
	Killed      string
	Report      *Investigation
}

// ResolveNight 按固定顺序结算：医生保护、黑手党标记、判定死亡、侦探结果。
// 不修改 roster。
func ResolveNight(book *NightBook, roster map[string]*models.Player) NightOutcome {
	var out NightOutcome

	if a, ok := book.Effective(models.RoleDoctor); ok {
		out.ProtectedID = a.TargetID
	}
	if a, ok := book.Effective(models.RoleMafia); ok {
		out.MarkedID = a.TargetID
	}
	if out.MarkedID != "" && out.MarkedID != out.ProtectedID {
		if target, ok := roster[out.MarkedID]; ok && target.Alive {
			out.Killed = out.MarkedID
		}
	}
	if a, ok := book.Effective(models.RoleDetective); ok {
		if target, ok := roster[a.TargetID]; ok {
			out.Report = &Investigation{
				DetectiveID: a.ActorID,
				TargetID:    a.TargetID,
				IsMafia:     target.IsMafia(),
			}
		}
	}
	return out
}

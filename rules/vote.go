package rules

import "github.com/wfunc/mafia/models"

// VoteOutcome 投票统计结果
type VoteOutcome struct {
	Counts     map[string]int
	Eliminated string
	Tie        bool
}

// Tally 统计投票，只计入存活投票人对存活目标的票。
// 唯一最高票者出局；最高票并列或无人投票时无人出局。
func Tally(votes map[string]string, roster map[string]*models.Player) VoteOutcome {
	out := VoteOutcome{Counts: make(map[string]int)}
	for voterID, targetID := range votes {
		voter, ok := roster[voterID]
		if !ok || !voter.Alive {
			continue
		}
		target, ok := roster[targetID]
		if !ok || !target.Alive {
			continue
		}
		out.Counts[targetID]++
	}

	top := 0
	leaders := 0
	for id, n := range out.Counts {
		switch {
		case n > top:
			top = n
			leaders = 1
			out.Eliminated = id
		case n == top:
			leaders++
		}
	}
	if leaders > 1 {
		out.Eliminated = ""
		out.Tie = true
	}
	return out
}

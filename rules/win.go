package rules

import "github.com/wfunc/mafia/models"

// AliveCounts 统计存活的黑手党与好人数量
func AliveCounts(roster map[string]*models.Player) (mafia, town int) {
	for _, p := range roster {
		if !p.Alive || p.Role == nil {
			continue
		}
		if p.IsMafia() {
			mafia++
		} else {
			town++
		}
	}
	return mafia, town
}

// EvaluateWin 黑手党全灭则好人胜（优先判定），否则黑手党人数不少于好人则黑手党胜。
func EvaluateWin(roster map[string]*models.Player) (models.Team, bool) {
	mafia, town := AliveCounts(roster)
	if mafia == 0 {
		return models.TeamTown, true
	}
	if mafia >= town {
		return models.TeamMafia, true
	}
	return "", false
}

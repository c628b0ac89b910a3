package state

import "github.com/wfunc/mafia/models"

// Journal 只追加的对局日志，按回合查询，用于结束时的复盘
type Journal struct {
	entries []models.LogEntry
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Append(e models.LogEntry) {
	j.entries = append(j.entries, e)
}

// Round 返回某一回合的全部条目
func (j *Journal) Round(n int) []models.LogEntry {
	var out []models.LogEntry
	for _, e := range j.entries {
		if e.Round == n {
			out = append(out, e)
		}
	}
	return out
}

// Public 返回可公开的条目
func (j *Journal) Public() []models.LogEntry {
	var out []models.LogEntry
	for _, e := range j.entries {
		if !e.Private {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) All() []models.LogEntry {
	out := make([]models.LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) Len() int {
	return len(j.entries)
}

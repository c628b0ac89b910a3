package roles

import (
	"fmt"
	"math/rand/v2"

	"github.com/wfunc/mafia/models"
)

// Shuffler 随机排列来源，*rand.Rand 满足该接口，测试可注入固定种子
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type globalShuffler struct{}

func (globalShuffler) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// Assignment 一名玩家分到的角色
type Assignment struct {
	PlayerID string
	Role     *models.Role
}

// Deck 根据配置生成角色多重集合，不足部分补村民
func Deck(cfg models.RoleConfig, players int) ([]*models.Role, error) {
	if err := cfg.Validate(players); err != nil {
		return nil, err
	}
	deck := make([]*models.Role, 0, players)
	for range cfg.Mafia {
		deck = append(deck, Mafia)
	}
	for range cfg.Detective {
		deck = append(deck, Detective)
	}
	for range cfg.Doctor {
		deck = append(deck, Doctor)
	}
	for len(deck) < players {
		deck = append(deck, Villager)
	}
	return deck, nil
}

// Assign 均匀随机地为 playerIDs 分配角色，结果与输入顺序一一对应。
// shuffler 为 nil 时使用全局随机源。
func Assign(playerIDs []string, cfg models.RoleConfig, shuffler Shuffler) ([]Assignment, error) {
	if len(playerIDs) == 0 {
		return nil, fmt.Errorf("%w: no players to assign", models.ErrInvalidConfiguration)
	}
	deck, err := Deck(cfg, len(playerIDs))
	if err != nil {
		return nil, err
	}
	if shuffler == nil {
		shuffler = globalShuffler{}
	}
	// Fisher–Yates
	shuffler.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	out := make([]Assignment, len(playerIDs))
	for i, id := range playerIDs {
		out[i] = Assignment{PlayerID: id, Role: deck[i]}
	}
	return out, nil
}

// Count 统计分配结果中各角色数量
func Count(assignments []Assignment) map[models.RoleID]int {
	counts := make(map[models.RoleID]int, len(catalog))
	for _, a := range assignments {
		counts[a.Role.ID]++
	}
	return counts
}

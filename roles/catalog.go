package roles

import "github.com/wfunc/mafia/models"

// 角色目录，全局共享且只读
var (
	Mafia = &models.Role{
		ID:          models.RoleMafia,
		Name:        "Mafia",
		Team:        models.TeamMafia,
		Description: "At night, choose a victim. Win when the mafia equal or outnumber the town.",
	}
	Detective = &models.Role{
		ID:          models.RoleDetective,
		Name:        "Detective",
		Team:        models.TeamTown,
		Description: "At night, investigate one player to learn whether they are mafia.",
	}
	Doctor = &models.Role{
		ID:          models.RoleDoctor,
		Name:        "Doctor",
		Team:        models.TeamTown,
		Description: "At night, choose another player to protect from the mafia.",
	}
	Villager = &models.Role{
		ID:          models.RoleVillager,
		Name:        "Villager",
		Team:        models.TeamTown,
		Description: "No night powers. Discuss and vote wisely during the day.",
	}
)

var catalog = []*models.Role{Mafia, Detective, Doctor, Villager}

// All 按固定顺序返回全部角色
func All() []*models.Role {
	out := make([]*models.Role, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup 按 ID 查找角色
func Lookup(id models.RoleID) (*models.Role, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

package entity

import (
	"errors"
	"fmt"
)

// StageRole 工序在库存计算中的角色
type StageRole string

const (
	RoleRaw      StageRole = "raw"      // 素材
	RoleSemi     StageRole = "semi"     // 在制/半品
	RoleFinished StageRole = "finished" // 成品
	RoleTotal    StageRole = "total"    // 总数（派生列）
)

// Stage 工序列定义
type Stage struct {
	Label  string    `json:"label" mapstructure:"label"`
	Column int       `json:"column" mapstructure:"column"` // 0-based
	Role   StageRole `json:"role" mapstructure:"role"`
}

// PartTypeConfig 铸件类型配置：工作表位置 + 工序列表
type PartTypeConfig struct {
	Name      string   `json:"name" mapstructure:"name"`             // 底座
	Code      string   `json:"code" mapstructure:"code"`             // base
	Sheet     int      `json:"sheet" mapstructure:"sheet"`           // 工作表序号
	SheetName string   `json:"sheet_name" mapstructure:"sheet_name"` // 优先于序号
	Keywords  []string `json:"keywords" mapstructure:"keywords"`     // 物料说明关键字
	Excludes  []string `json:"excludes" mapstructure:"excludes"`     // 命中即排除
	Stages    []Stage  `json:"stages" mapstructure:"stages"`
}

var (
	ErrInvalidPartType = errors.New("invalid part type config")
)

// Validate 启动时校验：标签唯一，且 raw / finished / total 各恰好一个
func (p PartTypeConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPartType)
	}
	if p.Sheet < 0 && p.SheetName == "" {
		return fmt.Errorf("%w: %s has no sheet", ErrInvalidPartType, p.Name)
	}
	seen := make(map[string]bool, len(p.Stages))
	counts := make(map[StageRole]int)
	for _, s := range p.Stages {
		if s.Label == "" {
			return fmt.Errorf("%w: %s has a stage without label", ErrInvalidPartType, p.Name)
		}
		if seen[s.Label] {
			return fmt.Errorf("%w: %s duplicate stage %q", ErrInvalidPartType, p.Name, s.Label)
		}
		seen[s.Label] = true
		if s.Column < 2 {
			return fmt.Errorf("%w: %s stage %q overlaps identifier columns", ErrInvalidPartType, p.Name, s.Label)
		}
		switch s.Role {
		case RoleRaw, RoleSemi, RoleFinished, RoleTotal:
			counts[s.Role]++
		default:
			return fmt.Errorf("%w: %s stage %q has unknown role %q", ErrInvalidPartType, p.Name, s.Label, s.Role)
		}
	}
	for _, role := range []StageRole{RoleRaw, RoleFinished, RoleTotal} {
		if counts[role] != 1 {
			return fmt.Errorf("%w: %s needs exactly one %s stage, got %d", ErrInvalidPartType, p.Name, role, counts[role])
		}
	}
	return nil
}

// Stage 按标签查找工序
func (p PartTypeConfig) Stage(label string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Label == label {
			return s, true
		}
	}
	return Stage{}, false
}

func (p PartTypeConfig) byRole(role StageRole) Stage {
	for _, s := range p.Stages {
		if s.Role == role {
			return s
		}
	}
	return Stage{Column: -1}
}

func (p PartTypeConfig) Raw() Stage      { return p.byRole(RoleRaw) }
func (p PartTypeConfig) Finished() Stage { return p.byRole(RoleFinished) }
func (p PartTypeConfig) Total() Stage    { return p.byRole(RoleTotal) }

// Counted 参与总数计算的工序（除总数列外全部）
func (p PartTypeConfig) Counted() []Stage {
	out := make([]Stage, 0, len(p.Stages))
	for _, s := range p.Stages {
		if s.Role != RoleTotal {
			out = append(out, s)
		}
	}
	return out
}

// Labels 工序标签（含总数）
func (p PartTypeConfig) Labels() []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Label
	}
	return out
}

// Matches 名称或代码匹配
func (p PartTypeConfig) Matches(key string) bool {
	return key == p.Name || (p.Code != "" && key == p.Code)
}

// DefaultPartTypes 铸件盘点表的默认布局
func DefaultPartTypes() []PartTypeConfig {
	return []PartTypeConfig{
		{
			Name: "底座", Code: "base", Sheet: 1,
			Keywords: []string{"底座"}, Excludes: []string{"馬達"},
			Stages: []Stage{
				{Label: "素材", Column: 2, Role: RoleRaw},
				{Label: "製程四", Column: 3, Role: RoleSemi},
				{Label: "製程三", Column: 4, Role: RoleSemi},
				{Label: "成品研磨", Column: 5, Role: RoleFinished},
				{Label: "總數", Column: 7, Role: RoleTotal},
			},
		},
		{
			Name: "工作台", Code: "workbench", Sheet: 2,
			Keywords: []string{"工作台"},
			Stages: []Stage{
				{Label: "素材", Column: 2, Role: RoleRaw},
				{Label: "製程一", Column: 3, Role: RoleSemi},
				{Label: "製程二", Column: 4, Role: RoleSemi},
				{Label: "製程三", Column: 5, Role: RoleSemi},
				{Label: "製程四", Column: 6, Role: RoleSemi},
				{Label: "成品", Column: 7, Role: RoleFinished},
				{Label: "總數", Column: 9, Role: RoleTotal},
			},
		},
		{
			Name: "橫樑", Code: "beam", Sheet: 3,
			Keywords: []string{"橫樑"},
			Stages: []Stage{
				{Label: "素材", Column: 2, Role: RoleRaw},
				{Label: "製程六", Column: 4, Role: RoleSemi},
				{Label: "製程五", Column: 5, Role: RoleSemi},
				{Label: "成品研磨", Column: 6, Role: RoleFinished},
				{Label: "總數", Column: 8, Role: RoleTotal},
			},
		},
		{
			Name: "立柱", Code: "column", Sheet: 4,
			Keywords: []string{"立柱"},
			Stages: []Stage{
				{Label: "素材", Column: 2, Role: RoleRaw},
				{Label: "半品", Column: 3, Role: RoleSemi},
				{Label: "成品銑工", Column: 4, Role: RoleSemi},
				{Label: "成品研磨", Column: 5, Role: RoleFinished},
				{Label: "總數", Column: 6, Role: RoleTotal},
			},
		},
	}
}

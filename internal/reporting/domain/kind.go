package domain

// RecordKind 填报记录类别
type RecordKind string

const (
	KindPredict    RecordKind = "predict"
	KindActualUser RecordKind = "actual_user"
	KindActualFin  RecordKind = "actual_fin"
	KindAudit      RecordKind = "audit"
)

// AllKinds 固定的四类记录
func AllKinds() []RecordKind {
	return []RecordKind{KindPredict, KindActualUser, KindActualFin, KindAudit}
}

func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(s)
	if _, ok := kindSpecs[k]; !ok {
		return "", Validationf("unknown record kind %q", s)
	}
	return k, nil
}

func (k RecordKind) String() string { return string(k) }

// KindSpec 每类记录的差异化规则
type KindSpec struct {
	Kind RecordKind
	// 可编辑/提交/申请撤回的角色
	EditorRoles []Role
	// 关联的上游记录类别，空表示不关联
	LinksTo RecordKind
	// 是否存在审计通过/驳回决策
	Decidable bool
	// 这些角色只能操作本组织的需求行
	OrgScopedRoles []Role
}

var kindSpecs = map[RecordKind]KindSpec{
	KindPredict: {
		Kind:           KindPredict,
		EditorRoles:    []Role{RoleReporter, RoleAdmin},
		OrgScopedRoles: []Role{RoleReporter},
	},
	KindActualUser: {
		Kind:           KindActualUser,
		EditorRoles:    []Role{RoleReporter, RoleAdmin},
		OrgScopedRoles: []Role{RoleReporter},
	},
	KindActualFin: {
		Kind:        KindActualFin,
		EditorRoles: []Role{RoleFinance, RoleAdmin},
		LinksTo:     KindActualUser,
	},
	KindAudit: {
		Kind:        KindAudit,
		EditorRoles: []Role{RoleAuditor, RoleAdmin},
		LinksTo:     KindActualFin,
		Decidable:   true,
	},
}

// SpecOf 返回类别规则；未知类别返回零值
func SpecOf(kind RecordKind) KindSpec {
	return kindSpecs[kind]
}

// CanEdit 判断操作者能否编辑某需求行下的该类记录
func (s KindSpec) CanEdit(p Principal, line *FundNeedLine) bool {
	if !containsRole(s.EditorRoles, p.Role) {
		return false
	}
	if containsRole(s.OrgScopedRoles, p.Role) {
		return line != nil && line.OrganizationID == p.OrganizationID
	}
	return true
}

func containsRole(roles []Role, r Role) bool {
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

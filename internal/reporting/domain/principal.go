package domain

// Role 操作者角色
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleAuditor  Role = "AUDITOR"
	RoleFinance  Role = "FINANCE"
	RoleReporter Role = "REPORTER"
	RoleObserver Role = "OBSERVER"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleAdmin, RoleAuditor, RoleFinance, RoleReporter, RoleObserver:
		return r, nil
	default:
		return "", Validationf("unknown role %q", s)
	}
}

// Principal 由外部认证组件提供的操作者身份
type Principal struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID uint64 `json:"organization_id"`
}

// SystemPrincipal 定时任务使用的内部身份
var SystemPrincipal = Principal{ID: "system", Role: RoleAdmin}

func (p Principal) Validate() error {
	if p.ID == "" {
		return PermissionDeniedf("missing principal")
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return PermissionDeniedf("unknown role %q", p.Role)
	}
	return nil
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanDecide 可审批撤回申请或审计
func (p Principal) CanDecide() bool {
	return p.Role == RoleAdmin || p.Role == RoleAuditor
}

// OrgRestricted 只能查看本组织数据的角色
func (p Principal) OrgRestricted() bool {
	return p.Role == RoleReporter || p.Role == RoleObserver
}

// CanRead 判断是否可查看某组织的数据
func (p Principal) CanRead(organizationID uint64) bool {
	if !p.OrgRestricted() {
		return true
	}
	return p.OrganizationID == organizationID
}

package domain

// AuditProgress 某组织某周期的填报与审计进度
type AuditProgress struct {
	OrganizationID    uint64 `json:"organization_id"`
	Period            Period `json:"period"`
	ActiveNeedsCount  int    `json:"active_needs_count"`
	UserFiledCount    int    `json:"user_filed_count"`
	FinanceFiledCount int    `json:"finance_filed_count"`
	AuditedCount      int    `json:"audited_count"`
	MatchedCount      int    `json:"matched_count"`
	CanAudit          bool   `json:"can_audit"`
	PendingAuditCount int    `json:"pending_audit_count"`
}

// ComputeProgress 基于对账快照计算单个组织的进度。
// lines 为该组织的需求行；报送判定与候选匹配复用 Reconcile，保持两者口径一致。
func ComputeProgress(organizationID uint64, lines []ActiveLine, snap PeriodSnapshot) AuditProgress {
	p := AuditProgress{OrganizationID: organizationID, Period: snap.Period}

	owned := make([]ActiveLine, 0, len(lines))
	for _, l := range lines {
		if l.Line.OrganizationID != organizationID {
			continue
		}
		owned = append(owned, l)
		if l.Countable() {
			p.ActiveNeedsCount++
		}
	}
	scoped := ScopeToLines(snap, owned)

	p.UserFiledCount = len(indexFiled(scoped.ActualUser, snap.Period))
	p.FinanceFiledCount = len(indexFiled(scoped.ActualFin, snap.Period))

	candidates := Reconcile(scoped)
	p.MatchedCount = len(candidates)
	pending := 0
	for _, c := range candidates {
		if c.NeedsAudit {
			pending++
		} else {
			p.AuditedCount++
		}
	}

	// 双方报送的需求行集合一致时，userFiled-audited 恰为需审计的候选数
	p.CanAudit = p.UserFiledCount > 0 &&
		p.UserFiledCount == p.FinanceFiledCount &&
		p.MatchedCount == p.UserFiledCount &&
		p.AuditedCount < p.UserFiledCount
	if p.CanAudit {
		p.PendingAuditCount = pending
	}
	return p
}

package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Candidate 待审计候选：同一需求行用户与财务均已报送
type Candidate struct {
	FundNeedID    uint64          `json:"fund_need_id"`
	UserRecord    *PeriodRecord   `json:"user_record"`
	FinanceRecord *PeriodRecord   `json:"finance_record"`
	ExistingAudit *PeriodRecord   `json:"existing_audit,omitempty"`
	Variance      decimal.Decimal `json:"variance"`
	HasDifference bool            `json:"has_difference"`
	NeedsAudit    bool            `json:"needs_audit"`
}

// PeriodSnapshot 某周期内对账所需的记录快照
type PeriodSnapshot struct {
	Period     Period
	ActualUser []*PeriodRecord
	ActualFin  []*PeriodRecord
	Audit      []*PeriodRecord
}

// Reconcile 按自然键匹配用户/财务报送并判定是否需要审计。
// 相同输入总是得到相同输出，结果按 fundNeedId 升序。
func Reconcile(snap PeriodSnapshot) []Candidate {
	users := indexFiled(snap.ActualUser, snap.Period)
	fins := indexFiled(snap.ActualFin, snap.Period)
	audits := indexByFundNeed(snap.Audit, snap.Period)

	out := make([]Candidate, 0, len(users))
	for fundNeedID, u := range users {
		f, ok := fins[fundNeedID]
		if !ok {
			continue
		}
		variance := u.Amount.Decimal.Sub(f.Amount.Decimal).Abs()
		audit := audits[fundNeedID]
		out = append(out, Candidate{
			FundNeedID:    fundNeedID,
			UserRecord:    u,
			FinanceRecord: f,
			ExistingAudit: audit,
			Variance:      variance,
			HasDifference: !variance.IsZero(),
			NeedsAudit:    audit == nil || audit.Status != StatusApproved,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FundNeedID < out[j].FundNeedID })
	return out
}

// ScopeToLines 将快照限定在启用的需求行内。对账、进度与审计决策共用这一口径
func ScopeToLines(snap PeriodSnapshot, lines []ActiveLine) PeriodSnapshot {
	scope := make(map[uint64]struct{}, len(lines))
	for _, l := range lines {
		if l.Line.Active {
			scope[l.Line.ID] = struct{}{}
		}
	}
	keep := func(in []*PeriodRecord) []*PeriodRecord {
		out := make([]*PeriodRecord, 0, len(in))
		for _, r := range in {
			if _, ok := scope[r.FundNeedID]; ok {
				out = append(out, r)
			}
		}
		return out
	}
	return PeriodSnapshot{
		Period:     snap.Period,
		ActualUser: keep(snap.ActualUser),
		ActualFin:  keep(snap.ActualFin),
		Audit:      keep(snap.Audit),
	}
}

// FindCandidate 返回某需求行的候选
func FindCandidate(candidates []Candidate, fundNeedID uint64) (Candidate, bool) {
	i := sort.Search(len(candidates), func(i int) bool { return candidates[i].FundNeedID >= fundNeedID })
	if i < len(candidates) && candidates[i].FundNeedID == fundNeedID {
		return candidates[i], true
	}
	return Candidate{}, false
}

func indexFiled(records []*PeriodRecord, period Period) map[uint64]*PeriodRecord {
	out := make(map[uint64]*PeriodRecord, len(records))
	for _, r := range records {
		if r.Period() != period || !r.Status.IsFiled() || !r.Amount.Valid {
			continue
		}
		out[r.FundNeedID] = r
	}
	return out
}

func indexByFundNeed(records []*PeriodRecord, period Period) map[uint64]*PeriodRecord {
	out := make(map[uint64]*PeriodRecord, len(records))
	for _, r := range records {
		if r.Period() != period {
			continue
		}
		out[r.FundNeedID] = r
	}
	return out
}

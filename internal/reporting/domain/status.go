package domain

// RecordStatus 填报记录状态
type RecordStatus string

const (
	StatusUnfilled          RecordStatus = "UNFILLED"
	StatusDraft             RecordStatus = "DRAFT"
	StatusSubmitted         RecordStatus = "SUBMITTED"
	StatusPendingWithdrawal RecordStatus = "PENDING_WITHDRAWAL"
	StatusApproved          RecordStatus = "APPROVED"
	StatusRejected          RecordStatus = "REJECTED"
	StatusWithdrawn         RecordStatus = "WITHDRAWN"
)

// AllStatuses 状态全集
func AllStatuses() []RecordStatus {
	return []RecordStatus{
		StatusUnfilled,
		StatusDraft,
		StatusSubmitted,
		StatusPendingWithdrawal,
		StatusApproved,
		StatusRejected,
		StatusWithdrawn,
	}
}

// ParseRecordStatus 将外部输入解析为状态，未知值返回校验错误
func ParseRecordStatus(s string) (RecordStatus, error) {
	st := RecordStatus(s)
	if !st.Valid() {
		return "", Validationf("unknown record status %q", s)
	}
	return st, nil
}

func (s RecordStatus) Valid() bool {
	switch s {
	case StatusUnfilled, StatusDraft, StatusSubmitted, StatusPendingWithdrawal,
		StatusApproved, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// IsFiled 已报送：对账与进度统计共用的判定
func (s RecordStatus) IsFiled() bool {
	switch s {
	case StatusSubmitted, StatusApproved:
		return true
	case StatusUnfilled, StatusDraft, StatusPendingWithdrawal, StatusRejected, StatusWithdrawn:
		return false
	default:
		return false
	}
}

// Editable 是否允许保存金额/备注
func (s RecordStatus) Editable() bool {
	switch s {
	case StatusUnfilled, StatusDraft:
		return true
	case StatusSubmitted, StatusPendingWithdrawal, StatusApproved, StatusRejected, StatusWithdrawn:
		return false
	default:
		return false
	}
}

func (s RecordStatus) String() string { return string(s) }

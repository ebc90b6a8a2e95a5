package application

import (
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/pkg/utils"
)

// SaveDraftCommand 保存金额与备注
type SaveDraftCommand struct {
	Principal domain.Principal
	Ref       domain.RecordRef
	Amount    decimal.NullDecimal
	Remark    string
}

// AuditDecisionCommand 审计决策；Amount 在审计记录尚可编辑时写入
type AuditDecisionCommand struct {
	Principal  domain.Principal
	FundNeedID uint64
	Period     domain.Period
	Amount     decimal.NullDecimal
	Approve    bool
	Remark     string
}

// WithdrawalRequestCommand 发起撤回申请
type WithdrawalRequestCommand struct {
	Principal domain.Principal
	Kind      domain.RecordKind
	RecordID  uint
	Reason    string
}

// WithdrawalDecisionCommand 审批撤回申请
type WithdrawalDecisionCommand struct {
	Principal domain.Principal
	RequestID uint
	Decision  domain.Decision
	Comment   string
}

// WithdrawalCancelCommand 撤销撤回申请
type WithdrawalCancelCommand struct {
	Principal domain.Principal
	RequestID uint
}

// BatchItemResult 批量操作的单项结果，失败不影响其他项
type BatchItemResult struct {
	RecordID   uint        `json:"record_id,omitempty"`
	FundNeedID uint64      `json:"fund_need_id,omitempty"`
	Success    bool        `json:"success"`
	Code       domain.Code `json:"code,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Message    string      `json:"message,omitempty"`
}

func itemResult(recordID uint, fundNeedID uint64, err error) BatchItemResult {
	res := BatchItemResult{RecordID: recordID, FundNeedID: fundNeedID, Success: err == nil}
	if err != nil {
		res.Code = domain.CodeOf(err)
		res.Reason = domain.ReasonOf(err)
		res.Message = publicMessage(err)
	}
	return res
}

// publicMessage 对外可见的错误描述，内部错误不透出原因
func publicMessage(err error) string {
	if domain.CodeOf(err) == domain.CodeInternal {
		return "internal error"
	}
	return err.Error()
}

// PublicMessage 供接口层使用
func PublicMessage(err error) string {
	return publicMessage(err)
}

// ListRecordsQuery 记录列表查询
type ListRecordsQuery struct {
	Principal      domain.Principal
	Period         *domain.Period
	Kind           domain.RecordKind
	Status         domain.RecordStatus
	OrganizationID *uint64
	Page           int
	PageSize       int
}

// RecordPage 记录分页结果
type RecordPage struct {
	Items      []*domain.PeriodRecord `json:"items"`
	Pagination *utils.Pagination      `json:"pagination"`
}

// ListWithdrawalsQuery 撤回申请列表查询
type ListWithdrawalsQuery struct {
	Principal domain.Principal
	Status    domain.WithdrawalStatus
	Kind      domain.RecordKind
	RecordID  uint
	Page      int
	PageSize  int
}

// WithdrawalPage 撤回申请分页结果
type WithdrawalPage struct {
	Items      []*domain.WithdrawalRequest `json:"items"`
	Pagination *utils.Pagination          `json:"pagination"`
}

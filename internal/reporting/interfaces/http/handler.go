// Package http 填报服务 HTTP 接口
package http

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fundreporting/internal/reporting/application"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

// ReportingHandler HTTP 处理器
type ReportingHandler struct {
	svc *application.ReportingService
}

func NewReportingHandler(svc *application.ReportingService) *ReportingHandler {
	return &ReportingHandler{svc: svc}
}

// RegisterRoutes 注册路由，调用方负责在 router 上挂载认证中间件
func (h *ReportingHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/reporting")
	{
		api.GET("/period/current", h.CurrentPeriod)
		api.POST("/skeletons", h.GenerateSkeletons)

		api.GET("/records", h.ListRecords)
		api.GET("/records/:id", h.GetRecord)
		api.GET("/records/:id/history", h.History)
		api.PUT("/records/draft", h.SaveDraft)
		api.POST("/records/submit", h.Submit)
		api.POST("/records/batch-submit", h.BatchSubmit)
		api.POST("/records/relink", h.RebuildLinks)

		api.GET("/reconciliation", h.Reconcile)
		api.POST("/audits", h.DecideAudit)
		api.POST("/audits/batch", h.BatchAudit)
		api.GET("/progress", h.Progress)

		api.GET("/withdrawals", h.ListWithdrawals)
		api.POST("/withdrawals", h.RequestWithdrawal)
		api.POST("/withdrawals/:id/decision", h.DecideWithdrawal)
		api.POST("/withdrawals/:id/cancel", h.CancelWithdrawal)
		api.GET("/withdrawals/policy/:kind", h.WithdrawalPolicy)
	}
}

// RecordRefRequest 记录引用：record_id，或 kind + fund_need_id + period
type RecordRefRequest struct {
	RecordID   uint   `json:"record_id"`
	Kind       string `json:"kind"`
	FundNeedID uint64 `json:"fund_need_id"`
	Period     string `json:"period"`
}

func (r RecordRefRequest) ref() (domain.RecordRef, error) {
	if r.RecordID != 0 {
		return domain.PersistedRef(r.RecordID), nil
	}
	period, err := domain.ParsePeriod(r.Period)
	if err != nil {
		return domain.RecordRef{}, err
	}
	return domain.PendingRef(domain.RecordKind(r.Kind), r.FundNeedID, period), nil
}

// SaveDraftRequest 保存草稿；amount 为 null 表示清空
type SaveDraftRequest struct {
	RecordRefRequest
	Amount decimal.NullDecimal `json:"amount"`
	Remark string              `json:"remark"`
}

// PeriodRequest 仅包含周期的请求
type PeriodRequest struct {
	Period string `json:"period" binding:"required"`
}

// BatchSubmitRequest 批量提交
type BatchSubmitRequest struct {
	RecordIDs []uint `json:"record_ids" binding:"required,min=1"`
}

// AuditRequest 审计决策
type AuditRequest struct {
	FundNeedID uint64              `json:"fund_need_id" binding:"required"`
	Period     string              `json:"period"`
	Amount     decimal.NullDecimal `json:"amount"`
	Approve    bool                `json:"approve"`
	Remark     string              `json:"remark"`
}

// BatchAuditRequest 批量审计，items 中未填写 period 时使用外层 period
type BatchAuditRequest struct {
	Period string         `json:"period"`
	Items  []AuditRequest `json:"items" binding:"required,min=1,dive"`
}

// WithdrawalRequest 发起撤回申请
type WithdrawalRequest struct {
	Kind     string `json:"kind" binding:"required"`
	RecordID uint   `json:"record_id" binding:"required"`
	Reason   string `json:"reason"`
}

// DecisionRequest 审批撤回申请
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}

func (h *ReportingHandler) CurrentPeriod(c *gin.Context) {
	success(c, gin.H{"period": h.svc.Records.CurrentPeriod().String()})
}

// GenerateSkeletons 生成骨架，period 为空时使用当前周期
func (h *ReportingHandler) GenerateSkeletons(c *gin.Context) {
	var req struct {
		Period string `json:"period"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period := h.svc.Records.CurrentPeriod()
	if req.Period != "" {
		p, err := domain.ParsePeriod(req.Period)
		if err != nil {
			fail(c, err)
			return
		}
		period = p
	}
	created, err := h.svc.Records.GenerateSkeletons(c.Request.Context(), principalOf(c), period)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"period": period.String(), "created": created})
}

func (h *ReportingHandler) SaveDraft(c *gin.Context) {
	var req SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ref, err := req.ref()
	if err != nil {
		fail(c, err)
		return
	}
	record, err := h.svc.Records.SaveDraft(c.Request.Context(), application.SaveDraftCommand{
		Principal: principalOf(c),
		Ref:       ref,
		Amount:    req.Amount,
		Remark:    req.Remark,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, record)
}

func (h *ReportingHandler) Submit(c *gin.Context) {
	var req RecordRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ref, err := req.ref()
	if err != nil {
		fail(c, err)
		return
	}
	record, err := h.svc.Records.Submit(c.Request.Context(), principalOf(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, record)
}

// BatchSubmit 部分失败时仍返回 200，逐项结果见 data
func (h *ReportingHandler) BatchSubmit(c *gin.Context) {
	var req BatchSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := principalOf(c)
	if err := p.Validate(); err != nil {
		fail(c, err)
		return
	}
	success(c, h.svc.Records.BatchSubmit(c.Request.Context(), p, req.RecordIDs))
}

func (h *ReportingHandler) RebuildLinks(c *gin.Context) {
	period, ok := bindPeriod(c)
	if !ok {
		return
	}
	changed, err := h.svc.Records.RebuildLinks(c.Request.Context(), principalOf(c), period)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"period": period.String(), "changed": changed})
}

func (h *ReportingHandler) DecideAudit(c *gin.Context) {
	var req AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		fail(c, err)
		return
	}
	record, err := h.svc.Records.DecideAudit(c.Request.Context(), application.AuditDecisionCommand{
		Principal:  principalOf(c),
		FundNeedID: req.FundNeedID,
		Period:     period,
		Amount:     req.Amount,
		Approve:    req.Approve,
		Remark:     req.Remark,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, record)
}

func (h *ReportingHandler) BatchAudit(c *gin.Context) {
	var req BatchAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := principalOf(c)
	if err := p.Validate(); err != nil {
		fail(c, err)
		return
	}
	items := make([]application.AuditDecisionCommand, 0, len(req.Items))
	for _, it := range req.Items {
		raw := it.Period
		if raw == "" {
			raw = req.Period
		}
		period, err := domain.ParsePeriod(raw)
		if err != nil {
			fail(c, err)
			return
		}
		items = append(items, application.AuditDecisionCommand{
			FundNeedID: it.FundNeedID,
			Period:     period,
			Amount:     it.Amount,
			Approve:    it.Approve,
			Remark:     it.Remark,
		})
	}
	success(c, h.svc.Records.BatchAudit(c.Request.Context(), p, items))
}

func (h *ReportingHandler) GetRecord(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	record, err := h.svc.Query.GetRecord(c.Request.Context(), principalOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, record)
}

func (h *ReportingHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.svc.Query.History(c.Request.Context(), principalOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, entries)
}

// ListRecords 查询参数：period, kind, status, organization_id, page, page_size
func (h *ReportingHandler) ListRecords(c *gin.Context) {
	q := application.ListRecordsQuery{
		Principal: principalOf(c),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	}
	if raw := c.Query("period"); raw != "" {
		period, err := domain.ParsePeriod(raw)
		if err != nil {
			fail(c, err)
			return
		}
		q.Period = &period
	}
	if raw := c.Query("kind"); raw != "" {
		kind, err := domain.ParseRecordKind(raw)
		if err != nil {
			fail(c, err)
			return
		}
		q.Kind = kind
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseRecordStatus(raw)
		if err != nil {
			fail(c, err)
			return
		}
		q.Status = status
	}
	org, ok := queryOrg(c)
	if !ok {
		return
	}
	q.OrganizationID = org

	page, err := h.svc.Query.ListRecords(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, page)
}

func (h *ReportingHandler) Reconcile(c *gin.Context) {
	period, err := domain.ParsePeriod(c.Query("period"))
	if err != nil {
		fail(c, err)
		return
	}
	org, ok := queryOrg(c)
	if !ok {
		return
	}
	candidates, err := h.svc.Query.Reconcile(c.Request.Context(), principalOf(c), period, org)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, candidates)
}

// Progress 指定 organization_id 时返回单个组织，否则返回所有可见组织
func (h *ReportingHandler) Progress(c *gin.Context) {
	period, err := domain.ParsePeriod(c.Query("period"))
	if err != nil {
		fail(c, err)
		return
	}
	org, ok := queryOrg(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if org != nil {
		progress, err := h.svc.Query.AuditProgress(ctx, principalOf(c), *org, period)
		if err != nil {
			fail(c, err)
			return
		}
		success(c, progress)
		return
	}
	all, err := h.svc.Query.ListAuditProgress(ctx, principalOf(c), period)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, all)
}

func (h *ReportingHandler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	request, err := h.svc.Withdrawals.SubmitRequest(c.Request.Context(), application.WithdrawalRequestCommand{
		Principal: principalOf(c),
		Kind:      domain.RecordKind(req.Kind),
		RecordID:  req.RecordID,
		Reason:    req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, request)
}

func (h *ReportingHandler) DecideWithdrawal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	request, err := h.svc.Withdrawals.Decide(c.Request.Context(), application.WithdrawalDecisionCommand{
		Principal: principalOf(c),
		RequestID: id,
		Decision:  domain.Decision(req.Decision),
		Comment:   req.Comment,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, request)
}

func (h *ReportingHandler) CancelWithdrawal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	request, err := h.svc.Withdrawals.Cancel(c.Request.Context(), application.WithdrawalCancelCommand{
		Principal: principalOf(c),
		RequestID: id,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, request)
}

// ListWithdrawals 查询参数：status, kind, record_id, page, page_size
func (h *ReportingHandler) ListWithdrawals(c *gin.Context) {
	q := application.ListWithdrawalsQuery{
		Principal: principalOf(c),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
		RecordID:  uint(queryInt(c, "record_id")),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseWithdrawalStatus(raw)
		if err != nil {
			fail(c, err)
			return
		}
		q.Status = status
	}
	if raw := c.Query("kind"); raw != "" {
		kind, err := domain.ParseRecordKind(raw)
		if err != nil {
			fail(c, err)
			return
		}
		q.Kind = kind
	}
	page, err := h.svc.Query.ListWithdrawals(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, page)
}

func (h *ReportingHandler) WithdrawalPolicy(c *gin.Context) {
	kind, err := domain.ParseRecordKind(c.Param("kind"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, h.svc.Withdrawals.Policy(kind))
}

func bindPeriod(c *gin.Context) (domain.Period, bool) {
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return domain.Period{}, false
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		fail(c, err)
		return domain.Period{}, false
	}
	return period, true
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, domain.Validationf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

func queryOrg(c *gin.Context) (*uint64, bool) {
	raw := c.Query("organization_id")
	if raw == "" {
		return nil, true
	}
	org, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fail(c, domain.Validationf("invalid organization_id %q", raw))
		return nil, false
	}
	return &org, true
}

// queryInt 非法或缺省时返回 0，由分页默认值兜底
func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/pkg/idgen"
)

// WithdrawalService 撤回（修改）申请流程
type WithdrawalService struct {
	base
	policies  domain.PolicySet
	requestNo idgen.Generator
}

// Policy 返回某类记录的生效策略
func (s *WithdrawalService) Policy(kind domain.RecordKind) domain.WithdrawalPolicy {
	return s.policies.For(kind)
}

// SubmitRequest 发起撤回申请。校验顺序：编辑权限、未决申请、状态、时限、次数。
// 策略不要求审批时由申请人直接通过。
func (s *WithdrawalService) SubmitRequest(ctx context.Context, cmd WithdrawalRequestCommand) (*domain.WithdrawalRequest, error) {
	const op = "request_withdrawal"
	p := cmd.Principal
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	kind, err := domain.ParseRecordKind(string(cmd.Kind))
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if cmd.RecordID == 0 {
		return nil, s.fail(ctx, op, domain.Validationf("record id is required"))
	}
	policy := s.policies.For(kind)

	var (
		request *domain.WithdrawalRequest
		entries []domain.TransitionEntry
	)
	err = s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		r, err := s.lockRecord(txCtx, kind, cmd.RecordID)
		if err != nil {
			return err
		}
		if err := s.authorizeEdit(txCtx, p, r); err != nil {
			return err
		}
		pending, err := s.repos.Withdrawals.FindPending(txCtx, kind, r.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := policy.Check(r, pending != nil, now); err != nil {
			return err
		}

		if err := r.RequestWithdrawal(txCtx, p.ID, cmd.Reason, now); err != nil {
			return err
		}
		req := domain.NewWithdrawalRequest(r, p.ID, cmd.Reason, s.nextRequestNo())
		if err := s.repos.Withdrawals.Create(txCtx, req); err != nil {
			return err
		}
		r.AddDomainEvent(withdrawalEvent(domain.EventWithdrawalRequested, req, r, p.ID, now))

		if !policy.RequireApproval {
			if err := s.approve(txCtx, r, req, p.ID, "auto-approved", now); err != nil {
				return err
			}
		}

		entries, err = s.persist(txCtx, r)
		request = req
		return err
	})
	if err != nil {
		if domain.CodeOf(translate(err)) == domain.CodePolicyViolation {
			s.metrics.RecordWithdrawal(string(kind), "blocked_"+domain.ReasonOf(err))
		}
		return nil, s.fail(ctx, op, err)
	}

	s.observe(entries)
	s.metrics.RecordWithdrawal(string(kind), string(request.Status))
	s.logger.InfoContext(ctx, "withdrawal requested",
		"request_no", request.RequestNo,
		"record_id", request.RecordID,
		"kind", kind,
		"status", request.Status,
		"actor", p.ID,
	)
	return request, nil
}

// Decide 审批撤回申请，仅处理 pending 状态的申请
func (s *WithdrawalService) Decide(ctx context.Context, cmd WithdrawalDecisionCommand) (*domain.WithdrawalRequest, error) {
	const op = "decide_withdrawal"
	p := cmd.Principal
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if !p.CanDecide() {
		return nil, s.fail(ctx, op, domain.PermissionDeniedf("%s cannot decide withdrawal requests", p.Role))
	}
	decision, err := domain.ParseDecision(string(cmd.Decision))
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var (
		request *domain.WithdrawalRequest
		entries []domain.TransitionEntry
	)
	err = s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		req, r, err := s.lockPending(txCtx, cmd.RequestID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		switch decision {
		case domain.DecisionApprove:
			if err := s.approve(txCtx, r, req, p.ID, cmd.Comment, now); err != nil {
				return err
			}
		case domain.DecisionReject:
			if err := r.RejectWithdrawal(txCtx, p.ID, cmd.Comment, now); err != nil {
				return err
			}
			if err := req.Reject(p.ID, cmd.Comment, now); err != nil {
				return err
			}
			if err := s.repos.Withdrawals.Save(txCtx, req); err != nil {
				return err
			}
			r.AddDomainEvent(withdrawalEvent(domain.EventWithdrawalRejected, req, r, p.ID, now))
		}

		entries, err = s.persist(txCtx, r)
		request = req
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	s.observe(entries)
	s.metrics.RecordWithdrawal(string(request.RecordKind), string(request.Status))
	s.logger.InfoContext(ctx, "withdrawal decided",
		"request_no", request.RequestNo,
		"record_id", request.RecordID,
		"decision", decision,
		"actor", p.ID,
	)
	return request, nil
}

// Cancel 申请人或管理员撤销未决申请，记录回到 SUBMITTED，不计入撤回次数
func (s *WithdrawalService) Cancel(ctx context.Context, cmd WithdrawalCancelCommand) (*domain.WithdrawalRequest, error) {
	const op = "cancel_withdrawal"
	p := cmd.Principal
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var (
		request *domain.WithdrawalRequest
		entries []domain.TransitionEntry
	)
	err := s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		req, r, err := s.lockPending(txCtx, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.RequesterID != p.ID && !p.IsAdmin() {
			return domain.PermissionDeniedf("only the requester or ADMIN may cancel request %s", req.RequestNo)
		}
		now := s.clock.Now()
		if err := r.CancelWithdrawal(txCtx, p.ID, now); err != nil {
			return err
		}
		if err := req.Cancel(p.ID, now); err != nil {
			return err
		}
		if err := s.repos.Withdrawals.Save(txCtx, req); err != nil {
			return err
		}
		r.AddDomainEvent(withdrawalEvent(domain.EventWithdrawalCanceled, req, r, p.ID, now))

		entries, err = s.persist(txCtx, r)
		request = req
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	s.observe(entries)
	s.metrics.RecordWithdrawal(string(request.RecordKind), string(request.Status))
	s.logger.InfoContext(ctx, "withdrawal canceled", "request_no", request.RequestNo, "actor", p.ID)
	return request, nil
}

func (s *WithdrawalService) approve(ctx context.Context, r *domain.PeriodRecord, req *domain.WithdrawalRequest, actor, comment string, now time.Time) error {
	if err := r.ApproveWithdrawal(ctx, actor, comment, now); err != nil {
		return err
	}
	if err := req.Approve(actor, comment, now); err != nil {
		return err
	}
	if err := s.repos.Withdrawals.Save(ctx, req); err != nil {
		return err
	}
	r.AddDomainEvent(withdrawalEvent(domain.EventWithdrawalApproved, req, r, actor, now))
	return nil
}

// lockRecord 加锁读取记录并校验类别
func (s *WithdrawalService) lockRecord(ctx context.Context, kind domain.RecordKind, id uint) (*domain.PeriodRecord, error) {
	r, err := s.repos.Records.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Kind != kind {
		return nil, domain.NotFoundf("record %d is not a %s record", id, kind)
	}
	return r, nil
}

// lockPending 先锁记录再锁申请，与发起申请的加锁顺序一致
func (s *WithdrawalService) lockPending(ctx context.Context, requestID uint) (*domain.WithdrawalRequest, *domain.PeriodRecord, error) {
	peek, err := s.repos.Withdrawals.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.lockRecord(ctx, peek.RecordKind, peek.RecordID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.repos.Withdrawals.GetForUpdate(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if !req.IsPending() {
		return nil, nil, domain.NotFoundf("no pending withdrawal request %d", requestID)
	}
	return req, r, nil
}

func (s *WithdrawalService) nextRequestNo() string {
	return fmt.Sprintf("WDR%d", s.requestNo.Generate())
}

func withdrawalEvent(name string, req *domain.WithdrawalRequest, r *domain.PeriodRecord, actor string, now time.Time) *domain.WithdrawalEvent {
	return &domain.WithdrawalEvent{
		Name:       name,
		RequestID:  req.ID,
		RequestNo:  req.RequestNo,
		RecordID:   r.ID,
		Kind:       r.Kind,
		ActorID:    actor,
		Reason:     req.Reason,
		Comment:    req.DecisionComment,
		Attempts:   r.WithdrawalAttempts,
		Timestamp:  now,
		FundNeedID: r.FundNeedID,
		Period:     r.Period(),
	}
}

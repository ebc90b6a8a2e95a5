package domain

import (
	"context"
	"fmt"

	"github.com/wyfcoding/pkg/fsm"
)

// Action 触发状态变化的动作
type Action string

const (
	ActionSave              Action = "save"
	ActionSubmit            Action = "submit"
	ActionRequestWithdrawal Action = "request_withdrawal"
	ActionApproveWithdrawal Action = "approve_withdrawal"
	ActionRejectWithdrawal  Action = "reject_withdrawal"
	ActionCancelWithdrawal  Action = "cancel_withdrawal"
	ActionApproveAudit      Action = "approve_audit"
	ActionRejectAudit       Action = "reject_audit"
	// ActionEdit 草稿内修改，不改变状态
	ActionEdit Action = "edit"
)

// Transition 状态迁移表中的一行
type Transition struct {
	From      RecordStatus
	Action    Action
	To        RecordStatus
	AuditOnly bool
}

var transitionTable = []Transition{
	{From: StatusUnfilled, Action: ActionSave, To: StatusDraft},
	{From: StatusDraft, Action: ActionSubmit, To: StatusSubmitted},
	{From: StatusSubmitted, Action: ActionRequestWithdrawal, To: StatusPendingWithdrawal},
	{From: StatusPendingWithdrawal, Action: ActionApproveWithdrawal, To: StatusDraft},
	{From: StatusPendingWithdrawal, Action: ActionRejectWithdrawal, To: StatusSubmitted},
	{From: StatusPendingWithdrawal, Action: ActionCancelWithdrawal, To: StatusSubmitted},
	{From: StatusSubmitted, Action: ActionApproveAudit, To: StatusApproved, AuditOnly: true},
	{From: StatusSubmitted, Action: ActionRejectAudit, To: StatusRejected, AuditOnly: true},
}

// Transitions 返回迁移表副本
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// LookupTransition 查找某类记录在 from 状态下执行 action 的目标状态
func LookupTransition(kind RecordKind, from RecordStatus, action Action) (Transition, bool) {
	for _, t := range transitionTable {
		if t.From != from || t.Action != action {
			continue
		}
		if t.AuditOnly && !SpecOf(kind).Decidable {
			return Transition{}, false
		}
		return t, true
	}
	return Transition{}, false
}

// newMachine 以当前状态为起点构建该类记录的状态机
func newMachine(kind RecordKind, current RecordStatus) *fsm.Machine {
	m := fsm.NewMachine(fsm.State(current))
	decidable := SpecOf(kind).Decidable
	for _, t := range transitionTable {
		if t.AuditOnly && !decidable {
			continue
		}
		m.AddTransition(fsm.State(t.From), fsm.Event(t.Action), fsm.State(t.To))
	}
	return m
}

// fire 由状态机判定迁移是否合法，返回目标状态
func fire(ctx context.Context, kind RecordKind, current RecordStatus, action Action) (RecordStatus, error) {
	m := newMachine(kind, current)
	if err := m.Trigger(ctx, fsm.Event(action)); err != nil {
		return "", &Error{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("%s record cannot %s from %s", kind, action, current),
			Err:     err,
		}
	}
	return RecordStatus(m.Current()), nil
}

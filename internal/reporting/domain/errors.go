// Package domain 填报记录生命周期、对账与撤回流程的领域模型
package domain

import (
	"errors"
	"fmt"
)

// Code 错误分类码，同时作为 API 响应中的 code 字段
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodePolicyViolation   Code = "POLICY_VIOLATION"
	CodeConflict          Code = "CONFLICT"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// 撤回策略违规原因
const (
	ReasonTimeLimitExceeded   = "time_limit_exceeded"
	ReasonMaxAttemptsExceeded = "max_attempts_exceeded"
	ReasonInvalidStatus       = "invalid_status"
	ReasonAlreadyPending      = "already_pending"
)

// Error 领域错误
type Error struct {
	Code    Code
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Reason != "" {
		msg += "(" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按错误分类码比较，使 errors.Is(err, ErrNotFound) 对任意消息生效
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrPolicyViolation   = &Error{Code: CodePolicyViolation}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInternal          = &Error{Code: CodeInternal}
)

func Validationf(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func PermissionDeniedf(format string, args ...any) error {
	return &Error{Code: CodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransitionf(format string, args ...any) error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// PolicyViolation 构造撤回策略违规错误
func PolicyViolation(reason, format string, args ...any) error {
	return &Error{Code: CodePolicyViolation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Internal 包装基础设施错误，对外不暴露原因
func Internal(err error) error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf 返回错误分类码，非领域错误视为内部错误
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf 返回策略违规原因
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

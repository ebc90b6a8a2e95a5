package application

import (
	"errors"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gorm.io/gorm"
)

// translate 将仓储与基础设施错误映射为领域错误；领域错误原样返回
func translate(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &domain.Error{Code: domain.CodeNotFound, Message: "resource not found", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &domain.Error{Code: domain.CodeConflict, Message: "concurrent modification", Err: err}
	default:
		return domain.Internal(err)
	}
}

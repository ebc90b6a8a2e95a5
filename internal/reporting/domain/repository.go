package domain

import "context"

// Transactor 在同一事务上下文中执行回调，事务句柄经 ctx 传递给各仓储
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RecordFilter 记录列表查询条件
type RecordFilter struct {
	Period      *Period
	Kind        RecordKind
	Status      RecordStatus
	FundNeedIDs []uint64
	Offset      int
	Limit       int
}

// RecordRepository 填报记录仓储
type RecordRepository interface {
	// CreateSkeleton 插入骨架记录，唯一键冲突视为已存在并返回 false
	CreateSkeleton(ctx context.Context, record *PeriodRecord) (bool, error)
	Save(ctx context.Context, record *PeriodRecord) error
	GetByID(ctx context.Context, id uint) (*PeriodRecord, error)
	// GetForUpdate 行锁读取（SELECT ... FOR UPDATE），须在事务中调用
	GetForUpdate(ctx context.Context, id uint) (*PeriodRecord, error)
	// GetByKey 按自然键读取，不存在返回 nil, nil
	GetByKey(ctx context.Context, key NaturalKey) (*PeriodRecord, error)
	GetByKeyForUpdate(ctx context.Context, key NaturalKey) (*PeriodRecord, error)
	ListByPeriod(ctx context.Context, period Period, kinds ...RecordKind) ([]*PeriodRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]*PeriodRecord, int64, error)
}

// LedgerRepository 状态流水仓储，只追加
type LedgerRepository interface {
	Append(ctx context.Context, entries ...TransitionEntry) error
	ListByRecord(ctx context.Context, recordID uint) ([]TransitionEntry, error)
}

// WithdrawalFilter 撤回申请查询条件
type WithdrawalFilter struct {
	Status      WithdrawalStatus
	Kind        RecordKind
	RecordID    uint
	RequesterID string
	Offset      int
	Limit       int
}

// WithdrawalRepository 撤回申请仓储
type WithdrawalRepository interface {
	Create(ctx context.Context, req *WithdrawalRequest) error
	Save(ctx context.Context, req *WithdrawalRequest) error
	GetByID(ctx context.Context, id uint) (*WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, id uint) (*WithdrawalRequest, error)
	// FindPending 不存在返回 nil, nil
	FindPending(ctx context.Context, kind RecordKind, recordID uint) (*WithdrawalRequest, error)
	List(ctx context.Context, filter WithdrawalFilter) ([]*WithdrawalRequest, int64, error)
}

// CatalogRepository 资金需求目录（只读为主）
type CatalogRepository interface {
	// GetLine 不存在返回 nil, nil
	GetLine(ctx context.Context, id uint64) (*FundNeedLine, error)
	// ListLines 返回需求行及项目状态；organizationID 为 nil 表示全部组织
	ListLines(ctx context.Context, organizationID *uint64) ([]ActiveLine, error)
	UpsertProject(ctx context.Context, project *Project) error
	UpsertLine(ctx context.Context, line *FundNeedLine) error
}

// EventOutbox 与业务变更同事务写入领域事件，提交后由中继投递
type EventOutbox interface {
	Append(ctx context.Context, events ...DomainEvent) error
}

package persistence

import (
	"context"
	"errors"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type withdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建撤回申请仓储
func NewWithdrawalRepository(db *gorm.DB) domain.WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

// Create open_key 唯一索引冲突返回 gorm.ErrDuplicatedKey
func (r *withdrawalRepository) Create(ctx context.Context, req *domain.WithdrawalRequest) error {
	return getDB(ctx, r.db).Create(req).Error
}

func (r *withdrawalRepository) Save(ctx context.Context, req *domain.WithdrawalRequest) error {
	return getDB(ctx, r.db).Save(req).Error
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	if err := getDB(ctx, r.db).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *withdrawalRepository) GetForUpdate(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	if err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *withdrawalRepository) FindPending(ctx context.Context, kind domain.RecordKind, recordID uint) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := getDB(ctx, r.db).
		Where("record_kind = ? AND record_id = ? AND status = ?", kind, recordID, domain.WithdrawalPending).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *withdrawalRepository) List(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalRequest, int64, error) {
	var (
		reqs  []*domain.WithdrawalRequest
		total int64
	)
	db := getDB(ctx, r.db).Model(&domain.WithdrawalRequest{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		db = db.Where("record_kind = ?", filter.Kind)
	}
	if filter.RecordID != 0 {
		db = db.Where("record_id = ?", filter.RecordID)
	}
	if filter.RequesterID != "" {
		db = db.Where("requester_id = ?", filter.RequesterID)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}
	if err := db.Offset(filter.Offset).Order("id desc").Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建需求目录仓储
func NewCatalogRepository(db *gorm.DB) domain.CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetLine(ctx context.Context, id uint64) (*domain.FundNeedLine, error) {
	var line domain.FundNeedLine
	if err := getDB(ctx, r.db).First(&line, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *catalogRepository) ListLines(ctx context.Context, organizationID *uint64) ([]domain.ActiveLine, error) {
	var lines []domain.FundNeedLine
	db := getDB(ctx, r.db)
	q := db.Model(&domain.FundNeedLine{})
	if organizationID != nil {
		q = q.Where("organization_id = ?", *organizationID)
	}
	if err := q.Order("id").Find(&lines).Error; err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []domain.ActiveLine{}, nil
	}

	projectIDs := make([]uint64, 0, len(lines))
	seen := make(map[uint64]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProjectID]; ok {
			continue
		}
		seen[l.ProjectID] = struct{}{}
		projectIDs = append(projectIDs, l.ProjectID)
	}
	var projects []domain.Project
	if err := db.Where("id IN ?", projectIDs).Find(&projects).Error; err != nil {
		return nil, err
	}
	status := make(map[uint64]domain.ProjectStatus, len(projects))
	for _, p := range projects {
		status[p.ID] = p.Status
	}

	out := make([]domain.ActiveLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.ActiveLine{Line: l, ProjectStatus: status[l.ProjectID]})
	}
	return out, nil
}

func (r *catalogRepository) UpsertProject(ctx context.Context, project *domain.Project) error {
	return getDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"organization_id", "name", "status", "updated_at"}),
	}).Create(project).Error
}

func (r *catalogRepository) UpsertLine(ctx context.Context, line *domain.FundNeedLine) error {
	return getDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"organization_id", "department_id", "project_id", "sub_project_id",
			"fund_type_id", "name", "active", "updated_at",
		}),
	}).Create(line).Error
}

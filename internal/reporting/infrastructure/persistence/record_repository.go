package persistence

import (
	"context"
	"errors"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建填报记录仓储
func NewRecordRepository(db *gorm.DB) domain.RecordRepository {
	return &recordRepository{db: db}
}

// CreateSkeleton 依赖 uk_period_record 唯一索引，冲突时不插入
func (r *recordRepository) CreateSkeleton(ctx context.Context, record *domain.PeriodRecord) (bool, error) {
	res := getDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordRepository) Save(ctx context.Context, record *domain.PeriodRecord) error {
	db := getDB(ctx, r.db)
	if record.ID == 0 {
		return db.Create(record).Error
	}
	return db.Save(record).Error
}

func (r *recordRepository) GetByID(ctx context.Context, id uint) (*domain.PeriodRecord, error) {
	var record domain.PeriodRecord
	if err := getDB(ctx, r.db).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepository) GetForUpdate(ctx context.Context, id uint) (*domain.PeriodRecord, error) {
	var record domain.PeriodRecord
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepository) GetByKey(ctx context.Context, key domain.NaturalKey) (*domain.PeriodRecord, error) {
	return r.getByKey(getDB(ctx, r.db), key)
}

func (r *recordRepository) GetByKeyForUpdate(ctx context.Context, key domain.NaturalKey) (*domain.PeriodRecord, error) {
	return r.getByKey(getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), key)
}

func (r *recordRepository) getByKey(db *gorm.DB, key domain.NaturalKey) (*domain.PeriodRecord, error) {
	var record domain.PeriodRecord
	err := db.Where("kind = ? AND fund_need_id = ? AND year = ? AND month = ?",
		key.Kind, key.FundNeedID, key.Period.Year, key.Period.Month).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *recordRepository) ListByPeriod(ctx context.Context, period domain.Period, kinds ...domain.RecordKind) ([]*domain.PeriodRecord, error) {
	var records []*domain.PeriodRecord
	db := getDB(ctx, r.db).Where("year = ? AND month = ?", period.Year, period.Month)
	if len(kinds) > 0 {
		db = db.Where("kind IN ?", kinds)
	}
	if err := db.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *recordRepository) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.PeriodRecord, int64, error) {
	var (
		records []*domain.PeriodRecord
		total   int64
	)
	db := getDB(ctx, r.db).Model(&domain.PeriodRecord{})
	if filter.Period != nil {
		db = db.Where("year = ? AND month = ?", filter.Period.Year, filter.Period.Month)
	}
	if filter.Kind != "" {
		db = db.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if len(filter.FundNeedIDs) > 0 {
		db = db.Where("fund_need_id IN ?", filter.FundNeedIDs)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}
	if err := db.Offset(filter.Offset).Order("id").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建状态流水仓储
func NewLedgerRepository(db *gorm.DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, entries ...domain.TransitionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return getDB(ctx, r.db).Create(&entries).Error
}

func (r *ledgerRepository) ListByRecord(ctx context.Context, recordID uint) ([]domain.TransitionEntry, error) {
	var entries []domain.TransitionEntry
	if err := getDB(ctx, r.db).Where("record_id = ?", recordID).Order("id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

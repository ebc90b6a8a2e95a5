// Package memory 填报仓储的内存实现，语义与 gorm 实现一致（唯一键、行锁、事务回滚），用于测试与本地演示
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gorm.io/gorm"
)

type txKey struct{}

// Store 单把互斥锁保护全部数据；事务期间持有锁，等价于对所有行加锁
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	data state
}

type state struct {
	nextRecordID     uint
	nextWithdrawalID uint
	nextLedgerID     uint64

	records     map[uint]*domain.PeriodRecord
	keys        map[domain.NaturalKey]uint
	ledger      []domain.TransitionEntry
	withdrawals map[uint]*domain.WithdrawalRequest
	requestNos  map[string]uint
	openKeys    map[string]uint
	projects    map[uint64]domain.Project
	lines       map[uint64]domain.FundNeedLine
	events      []domain.DomainEvent
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{
		now: time.Now,
		data: state{
			records:     make(map[uint]*domain.PeriodRecord),
			keys:        make(map[domain.NaturalKey]uint),
			withdrawals: make(map[uint]*domain.WithdrawalRequest),
			requestNos:  make(map[string]uint),
			openKeys:    make(map[string]uint),
			projects:    make(map[uint64]domain.Project),
			lines:       make(map[uint64]domain.FundNeedLine),
		},
	}
}

// Transaction 回调返回错误时恢复到事务开始前的状态；嵌套调用复用外层事务
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = saved
			panic(r)
		}
		if err != nil {
			s.data = saved
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock 事务外的单次操作自行加锁
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// clone 存储的记录均为不可变副本，写入时整体替换，因此浅拷贝映射即可
func (st state) clone() state {
	out := st
	out.records = cloneMap(st.records)
	out.keys = cloneMap(st.keys)
	out.withdrawals = cloneMap(st.withdrawals)
	out.requestNos = cloneMap(st.requestNos)
	out.openKeys = cloneMap(st.openKeys)
	out.projects = cloneMap(st.projects)
	out.lines = cloneMap(st.lines)
	out.ledger = append([]domain.TransitionEntry(nil), st.ledger...)
	out.events = append([]domain.DomainEvent(nil), st.events...)
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Records 记录仓储视图
func (s *Store) Records() domain.RecordRepository { return recordRepo{s} }

// Ledger 流水仓储视图
func (s *Store) Ledger() domain.LedgerRepository { return ledgerRepo{s} }

// Withdrawals 撤回申请仓储视图
func (s *Store) Withdrawals() domain.WithdrawalRepository { return withdrawalRepo{s} }

// Catalog 需求目录视图
func (s *Store) Catalog() domain.CatalogRepository { return catalogRepo{s} }

// Outbox 事件暂存视图
func (s *Store) Outbox() domain.EventOutbox { return outboxRepo{s} }

// Events 已写入的领域事件副本
func (s *Store) Events() []domain.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DomainEvent(nil), s.data.events...)
}

// SetNow 替换写入时间戳来源
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func copyRecord(r *domain.PeriodRecord) *domain.PeriodRecord {
	c := *r
	c.ClearTransitions()
	c.ClearDomainEvents()
	return &c
}

func copyRequest(w *domain.WithdrawalRequest) *domain.WithdrawalRequest {
	c := *w
	return &c
}

type recordRepo struct{ s *Store }

func (r recordRepo) CreateSkeleton(ctx context.Context, record *domain.PeriodRecord) (bool, error) {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.keys[record.NaturalKey()]; ok {
		return false, nil
	}
	r.s.insertRecord(record)
	return true, nil
}

func (r recordRepo) Save(ctx context.Context, record *domain.PeriodRecord) error {
	defer r.s.lock(ctx)()
	st := &r.s.data
	if record.ID == 0 {
		if _, ok := st.keys[record.NaturalKey()]; ok {
			return gorm.ErrDuplicatedKey
		}
		r.s.insertRecord(record)
		return nil
	}
	old, ok := st.records[record.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if old.NaturalKey() != record.NaturalKey() {
		if _, taken := st.keys[record.NaturalKey()]; taken {
			return gorm.ErrDuplicatedKey
		}
		delete(st.keys, old.NaturalKey())
		st.keys[record.NaturalKey()] = record.ID
	}
	record.CreatedAt = old.CreatedAt
	record.UpdatedAt = r.s.now()
	st.records[record.ID] = copyRecord(record)
	return nil
}

func (s *Store) insertRecord(record *domain.PeriodRecord) {
	st := &s.data
	st.nextRecordID++
	now := s.now()
	record.ID = st.nextRecordID
	record.CreatedAt = now
	record.UpdatedAt = now
	st.records[record.ID] = copyRecord(record)
	st.keys[record.NaturalKey()] = record.ID
}

func (r recordRepo) GetByID(ctx context.Context, id uint) (*domain.PeriodRecord, error) {
	defer r.s.lock(ctx)()
	rec, ok := r.s.data.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (r recordRepo) GetForUpdate(ctx context.Context, id uint) (*domain.PeriodRecord, error) {
	return r.GetByID(ctx, id)
}

func (r recordRepo) GetByKey(ctx context.Context, key domain.NaturalKey) (*domain.PeriodRecord, error) {
	defer r.s.lock(ctx)()
	id, ok := r.s.data.keys[key]
	if !ok {
		return nil, nil
	}
	return copyRecord(r.s.data.records[id]), nil
}

func (r recordRepo) GetByKeyForUpdate(ctx context.Context, key domain.NaturalKey) (*domain.PeriodRecord, error) {
	return r.GetByKey(ctx, key)
}

func (r recordRepo) ListByPeriod(ctx context.Context, period domain.Period, kinds ...domain.RecordKind) ([]*domain.PeriodRecord, error) {
	defer r.s.lock(ctx)()
	out := make([]*domain.PeriodRecord, 0)
	for _, rec := range r.s.data.records {
		if rec.Period() != period {
			continue
		}
		if len(kinds) > 0 && !containsKind(kinds, rec.Kind) {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r recordRepo) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.PeriodRecord, int64, error) {
	defer r.s.lock(ctx)()
	var fundNeeds map[uint64]struct{}
	if len(filter.FundNeedIDs) > 0 {
		fundNeeds = make(map[uint64]struct{}, len(filter.FundNeedIDs))
		for _, id := range filter.FundNeedIDs {
			fundNeeds[id] = struct{}{}
		}
	}

	matched := make([]*domain.PeriodRecord, 0)
	for _, rec := range r.s.data.records {
		if filter.Period != nil && rec.Period() != *filter.Period {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if fundNeeds != nil {
			if _, ok := fundNeeds[rec.FundNeedID]; !ok {
				continue
			}
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	page := paginate(matched, filter.Offset, filter.Limit)
	out := make([]*domain.PeriodRecord, len(page))
	for i, rec := range page {
		out[i] = copyRecord(rec)
	}
	return out, total, nil
}

type ledgerRepo struct{ s *Store }

func (l ledgerRepo) Append(ctx context.Context, entries ...domain.TransitionEntry) error {
	defer l.s.lock(ctx)()
	st := &l.s.data
	for _, e := range entries {
		st.nextLedgerID++
		e.ID = st.nextLedgerID
		st.ledger = append(st.ledger, e)
	}
	return nil
}

func (l ledgerRepo) ListByRecord(ctx context.Context, recordID uint) ([]domain.TransitionEntry, error) {
	defer l.s.lock(ctx)()
	out := make([]domain.TransitionEntry, 0)
	for _, e := range l.s.data.ledger {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

type withdrawalRepo struct{ s *Store }

func (w withdrawalRepo) Create(ctx context.Context, req *domain.WithdrawalRequest) error {
	defer w.s.lock(ctx)()
	st := &w.s.data
	if _, ok := st.requestNos[req.RequestNo]; ok {
		return gorm.ErrDuplicatedKey
	}
	if req.OpenKey != nil {
		if _, ok := st.openKeys[*req.OpenKey]; ok {
			return gorm.ErrDuplicatedKey
		}
	}
	st.nextWithdrawalID++
	now := w.s.now()
	req.ID = st.nextWithdrawalID
	req.CreatedAt = now
	req.UpdatedAt = now
	st.withdrawals[req.ID] = copyRequest(req)
	st.requestNos[req.RequestNo] = req.ID
	if req.OpenKey != nil {
		st.openKeys[*req.OpenKey] = req.ID
	}
	return nil
}

func (w withdrawalRepo) Save(ctx context.Context, req *domain.WithdrawalRequest) error {
	defer w.s.lock(ctx)()
	st := &w.s.data
	old, ok := st.withdrawals[req.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if req.OpenKey != nil {
		if owner, taken := st.openKeys[*req.OpenKey]; taken && owner != req.ID {
			return gorm.ErrDuplicatedKey
		}
	}
	if old.OpenKey != nil {
		delete(st.openKeys, *old.OpenKey)
	}
	if req.OpenKey != nil {
		st.openKeys[*req.OpenKey] = req.ID
	}
	req.CreatedAt = old.CreatedAt
	req.UpdatedAt = w.s.now()
	st.withdrawals[req.ID] = copyRequest(req)
	return nil
}

func (w withdrawalRepo) GetByID(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	defer w.s.lock(ctx)()
	req, ok := w.s.data.withdrawals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyRequest(req), nil
}

func (w withdrawalRepo) GetForUpdate(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	return w.GetByID(ctx, id)
}

func (w withdrawalRepo) FindPending(ctx context.Context, kind domain.RecordKind, recordID uint) (*domain.WithdrawalRequest, error) {
	defer w.s.lock(ctx)()
	for _, req := range w.s.data.withdrawals {
		if req.RecordKind == kind && req.RecordID == recordID && req.IsPending() {
			return copyRequest(req), nil
		}
	}
	return nil, nil
}

func (w withdrawalRepo) List(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalRequest, int64, error) {
	defer w.s.lock(ctx)()
	matched := make([]*domain.WithdrawalRequest, 0)
	for _, req := range w.s.data.withdrawals {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && req.RecordKind != filter.Kind {
			continue
		}
		if filter.RecordID != 0 && req.RecordID != filter.RecordID {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		matched = append(matched, req)
	}
	// 最新的申请在前
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	page := paginate(matched, filter.Offset, filter.Limit)
	out := make([]*domain.WithdrawalRequest, len(page))
	for i, req := range page {
		out[i] = copyRequest(req)
	}
	return out, total, nil
}

type catalogRepo struct{ s *Store }

func (c catalogRepo) GetLine(ctx context.Context, id uint64) (*domain.FundNeedLine, error) {
	defer c.s.lock(ctx)()
	line, ok := c.s.data.lines[id]
	if !ok {
		return nil, nil
	}
	return &line, nil
}

func (c catalogRepo) ListLines(ctx context.Context, organizationID *uint64) ([]domain.ActiveLine, error) {
	defer c.s.lock(ctx)()
	out := make([]domain.ActiveLine, 0, len(c.s.data.lines))
	for _, line := range c.s.data.lines {
		if organizationID != nil && line.OrganizationID != *organizationID {
			continue
		}
		al := domain.ActiveLine{Line: line}
		if p, ok := c.s.data.projects[line.ProjectID]; ok {
			al.ProjectStatus = p.Status
		}
		out = append(out, al)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line.ID < out[j].Line.ID })
	return out, nil
}

func (c catalogRepo) UpsertProject(ctx context.Context, project *domain.Project) error {
	defer c.s.lock(ctx)()
	project.UpdatedAt = c.s.now()
	c.s.data.projects[project.ID] = *project
	return nil
}

func (c catalogRepo) UpsertLine(ctx context.Context, line *domain.FundNeedLine) error {
	defer c.s.lock(ctx)()
	line.UpdatedAt = c.s.now()
	c.s.data.lines[line.ID] = *line
	return nil
}

type outboxRepo struct{ s *Store }

func (o outboxRepo) Append(ctx context.Context, events ...domain.DomainEvent) error {
	defer o.s.lock(ctx)()
	o.s.data.events = append(o.s.data.events, events...)
	return nil
}

func containsKind(kinds []domain.RecordKind, k domain.RecordKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

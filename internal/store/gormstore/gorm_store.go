package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tvhook/internal/store"
	storemodel "tvhook/internal/store/model"
	"tvhook/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type groupModel = storemodel.TradeGroupModel
type recordModel = storemodel.WebhookRecordModel

const maxListLimit = 500

// GormStore implements store.Store using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (and migrates) the database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// gorm 的 sqlite 驱动是 mattn/go-sqlite3，参数用它的写法；不要开 cache=shared，
	// 共享缓存下写冲突直接返回 SQLITE_LOCKED，busy_timeout 不会重试。
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	return open(dsn)
}

func open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&groupModel{}, &recordModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 单连接串行化所有写入，事务内只经由 tx 访问，不会自锁。
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database still answers.
func (s *GormStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &unitOfWork{tx: tx}, nil
}

func (s *GormStore) Groups() store.GroupRepository {
	return groupRepo{db: s.db}
}

func (s *GormStore) Records() store.RecordRepository {
	return recordRepo{db: s.db}
}

type unitOfWork struct {
	tx *gorm.DB
}

func (u *unitOfWork) Commit() error   { return u.tx.Commit().Error }
func (u *unitOfWork) Rollback() error { return u.tx.Rollback().Error }

func (u *unitOfWork) Groups() store.GroupRepository   { return groupRepo{db: u.tx} }
func (u *unitOfWork) Records() store.RecordRepository { return recordRepo{db: u.tx} }

// --------------------------- Trade groups ------------------------------

type groupRepo struct {
	db *gorm.DB
}

func (r groupRepo) Save(ctx context.Context, group *types.TradeGroup) error {
	if group == nil || strings.TrimSpace(group.ID) == "" {
		return fmt.Errorf("trade group id 必填")
	}
	model := newGroupModel(*group, time.Now())
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "orphan", "entry_price", "entry_quantity", "leverage", "stop_loss_at_entry",
				"last_position_size", "last_activity_at", "closed_at", "broker", "updated_at",
			}),
		}).
		Create(&model).Error
}

func (r groupRepo) FindByID(ctx context.Context, owner, id string) (*types.TradeGroup, error) {
	var model groupModel
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	g := groupModelToType(model)
	return &g, nil
}

func (r groupRepo) ListActive(ctx context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ? AND instrument = ? AND status = ?", owner, instrument, string(types.GroupActive)).
		Where("last_activity_at >= ?", since.UnixMilli()).
		Order("last_activity_at DESC")
	if direction != "" {
		query = query.Where("direction = ?", string(direction))
	}
	var models []groupModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return groupModelsToTypes(models), nil
}

func (r groupRepo) List(ctx context.Context, owner string, f store.GroupFilter) ([]types.TradeGroup, error) {
	query := r.db.WithContext(ctx).Where("owner_id = ?", owner)
	if sym := strings.TrimSpace(f.Symbol); sym != "" {
		query = query.Where("instrument = ?", strings.ToUpper(sym))
	}
	if broker := strings.TrimSpace(f.Broker); broker != "" {
		query = query.Where("broker = ?", strings.ToLower(broker))
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.Direction != "" {
		query = query.Where("direction = ?", string(f.Direction))
	}
	if !f.Since.IsZero() {
		query = query.Where("opened_at >= ?", f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		query = query.Where("opened_at <= ?", f.Until.UnixMilli())
	}
	var models []groupModel
	err := query.Order("opened_at DESC, id DESC").
		Limit(clampLimit(f.Limit)).
		Offset(max(f.Offset, 0)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return groupModelsToTypes(models), nil
}

func (r groupRepo) EntryPrice(ctx context.Context, id string) (*float64, error) {
	var model groupModel
	err := r.db.WithContext(ctx).Select("entry_price").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if model.EntryPrice != nil {
		return model.EntryPrice, nil
	}
	var rec recordModel
	err = r.db.WithContext(ctx).
		Where("trade_group_id = ? AND alert_kind = ?", id, string(types.AlertEntry)).
		Order("ts ASC, id ASC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if rec.EntryPrice != nil {
		return rec.EntryPrice, nil
	}
	return rec.OrderPrice, nil
}

// --------------------------- Webhook records ------------------------------

type recordRepo struct {
	db *gorm.DB
}

func (r recordRepo) Save(ctx context.Context, rec *types.WebhookRecord) error {
	if rec == nil {
		return nil
	}
	model, err := newRecordModel(*rec, time.Now())
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	rec.ID = model.ID
	return nil
}

func (r recordRepo) ListByGroups(ctx context.Context, groupIDs []string) (map[string][]types.WebhookRecord, error) {
	ids := make([]string, 0, len(groupIDs))
	seen := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	out := make(map[string][]types.WebhookRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []recordModel
	err := r.db.WithContext(ctx).
		Where("trade_group_id IN ?", ids).
		Order("ts ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		rec := recordModelToType(m)
		out[rec.TradeGroupID] = append(out[rec.TradeGroupID], rec)
	}
	return out, nil
}

func (r recordRepo) List(ctx context.Context, owner string, f store.RecordFilter) ([]types.WebhookRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&recordModel{}).Where("owner_id = ?", owner)
	if broker := strings.TrimSpace(f.Broker); broker != "" {
		query = query.Where("broker = ?", strings.ToLower(broker))
	}
	if sym := strings.TrimSpace(f.Symbol); sym != "" {
		query = query.Where("instrument LIKE ?", "%"+strings.ToUpper(sym)+"%")
	}
	if f.Kind != "" {
		query = query.Where("alert_kind = ?", string(f.Kind))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []recordModel
	err := query.Order("ts DESC, id DESC").
		Limit(clampLimit(f.Limit)).
		Offset(max(f.Offset, 0)).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]types.WebhookRecord, 0, len(models))
	for _, m := range models {
		out = append(out, recordModelToType(m))
	}
	return out, total, nil
}

func (r recordRepo) OrderTimestamps(ctx context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error) {
	var stamps []int64
	err := r.db.WithContext(ctx).Model(&recordModel{}).
		Where("owner_id = ? AND instrument = ? AND external_order_id = ?", owner, instrument, orderID).
		Where("ts >= ?", since.UnixMilli()).
		Pluck("ts", &stamps).Error
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(stamps))
	for _, ms := range stamps {
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out, nil
}

// UpdateChangeFlags writes only the SL/TP change flags.
func (r recordRepo) UpdateChangeFlags(ctx context.Context, records []types.WebhookRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if rec.ID == 0 {
				continue
			}
			err := tx.Model(&recordModel{}).
				Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"stop_loss_changed":   rec.StopLossChanged,
					"take_profit_changed": rec.TakeProfitChanged,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r recordRepo) CountByKind(ctx context.Context, owner string) (map[types.AlertKind]int64, error) {
	var rows []struct {
		AlertKind string
		Total     int64
	}
	err := r.db.WithContext(ctx).Model(&recordModel{}).
		Select("alert_kind, COUNT(*) AS total").
		Where("owner_id = ?", owner).
		Group("alert_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.AlertKind]int64, len(rows))
	for _, row := range rows {
		out[types.ParseAlertKind(row.AlertKind)] += row.Total
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

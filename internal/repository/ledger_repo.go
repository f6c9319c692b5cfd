package repository

import (
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(entry *model.LedgerEntry) error {
	return r.db.Create(entry).Error
}

func (r *LedgerRepository) ListByUser(userID string, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []*model.LedgerEntry
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SumByUser 流水合计，用于审计核对余额
func (r *LedgerRepository) SumByUser(userID string) (int64, error) {
	var total int64
	err := r.db.Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

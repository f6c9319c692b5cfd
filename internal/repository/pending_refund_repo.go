package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
)

type PendingRefundRepository struct {
	db *gorm.DB
}

func NewPendingRefundRepository(db *gorm.DB) *PendingRefundRepository {
	return &PendingRefundRepository{db: db}
}

func (r *PendingRefundRepository) Create(refund *model.PendingRefund) error {
	return r.db.Create(refund).Error
}

// ListUnsettled 待补偿的退款（按创建时间先进先出）
func (r *PendingRefundRepository) ListUnsettled(maxAttempts, limit int) ([]*model.PendingRefund, error) {
	if limit <= 0 {
		limit = 100
	}
	var refunds []*model.PendingRefund
	err := r.db.Where("settled_at IS NULL AND attempts < ?", maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&refunds).Error
	return refunds, err
}

func (r *PendingRefundRepository) MarkSettled(id int64) error {
	now := time.Now()
	return r.db.Model(&model.PendingRefund{}).Where("id = ?", id).
		Update("settled_at", now).Error
}

func (r *PendingRefundRepository) IncrementAttempts(id int64) error {
	return r.db.Model(&model.PendingRefund{}).Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

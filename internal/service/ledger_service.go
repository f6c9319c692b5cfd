package service

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
)

var (
	ErrInsufficientCredits = errors.New("积分不足")
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrInvalidAmount       = errors.New("金额必须为正整数")
)

// LedgerService 积分账本。余额的唯一写入方：
// 扣减采用带余额条件的原子 UPDATE，流水在同一事务里落库，
// 两个并发扣减不可能都通过余额检查。
type LedgerService struct {
	db         *gorm.DB
	refundRepo *repository.PendingRefundRepository
}

func NewLedgerService(db *gorm.DB, refundRepo *repository.PendingRefundRepository) *LedgerService {
	return &LedgerService{db: db, refundRepo: refundRepo}
}

// Debit 原子扣减。余额不足返回 ErrInsufficientCredits，余额不变。
func (s *LedgerService) Debit(userID string, amount int64, reason string, meta map[string]interface{}) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry := newEntry(userID, -amount, model.EntryTypeDebit, reason, meta)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 条件更新保证余额检查与扣减原子完成
		result := tx.Model(&model.Account{}).
			Where("user_id = ? AND credits >= ?", userID, amount).
			Update("credits", gorm.Expr("credits - ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.Account{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrAccountNotFound
			}
			return ErrInsufficientCredits
		}

		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit 原子充值/退还。不做上限检查（内部调用方可信）。
func (s *LedgerService) Credit(userID string, amount int64, reason string, meta map[string]interface{}) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry := newEntry(userID, amount, model.EntryTypeCredit, reason, meta)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Account{}).
			Where("user_id = ?", userID).
			Update("credits", gorm.Expr("credits + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GrantInvoiceCredits 发票驱动的订阅积分发放。
// 同一事务内完成：last_invoice_id 守卫 + 账户字段更新 + 加积分 + 流水。
// 发票已发放过时返回 false（用户级幂等，重复投递安全）。
func (s *LedgerService) GrantInvoiceCredits(userID string, amount int64, invoiceID, grantCycle string, fields map[string]interface{}) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	granted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"credits":          gorm.Expr("credits + ?", amount),
			"last_invoice_id":  invoiceID,
			"last_grant_cycle": grantCycle,
		}
		for k, v := range fields {
			updates[k] = v
		}

		result := tx.Model(&model.Account{}).
			Where("user_id = ? AND (last_invoice_id IS NULL OR last_invoice_id <> ?)", userID, invoiceID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 发票已处理过，跳过
			return nil
		}
		granted = true

		entry := newEntry(userID, amount, model.EntryTypeCredit, "subscription_grant",
			map[string]interface{}{"invoice_id": invoiceID, "cycle": grantCycle})
		return tx.Create(entry).Error
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// RefundOrQueue 尽力退还。退款本身失败时记运营告警并落补偿记录，
// 绝不掩盖原始错误（由调用方继续上抛）。
func (s *LedgerService) RefundOrQueue(userID string, amount int64, reason string, meta map[string]interface{}) {
	if _, err := s.Credit(userID, amount, reason, meta); err != nil {
		log.Printf("ALERT: refund failed for user %s amount %d: %v", userID, amount, err)

		metaJSON, _ := json.Marshal(meta)
		pending := &model.PendingRefund{
			UserID: userID,
			Amount: amount,
			Reason: reason,
			Meta:   string(metaJSON),
		}
		if err := s.refundRepo.Create(pending); err != nil {
			log.Printf("ALERT: failed to record pending refund for user %s amount %d: %v", userID, amount, err)
		}
	}
}

func newEntry(userID string, amount int64, entryType, reason string, meta map[string]interface{}) *model.LedgerEntry {
	metaJSON := ""
	if len(meta) > 0 {
		if data, err := json.Marshal(meta); err == nil {
			metaJSON = string(data)
		}
	}
	return &model.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		EntryType: entryType,
		Reason:    reason,
		Meta:      metaJSON,
		CreatedAt: time.Now(),
	}
}

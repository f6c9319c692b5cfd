package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
)

// AccountService 账户读侧投影
type AccountService struct {
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewAccountService(accountRepo *repository.AccountRepository, ledgerRepo *repository.LedgerRepository) *AccountService {
	return &AccountService{accountRepo: accountRepo, ledgerRepo: ledgerRepo}
}

// GetPlan 返回套餐 + 余额 + 下次扣费时间。
// 账户不存在视为免费档新用户，不报错。
func (s *AccountService) GetPlan(userID string) (*dto.PlanInfo, error) {
	account, err := s.accountRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.PlanInfo{Plan: model.PlanFree, Credits: 0}, nil
		}
		return nil, err
	}

	info := &dto.PlanInfo{
		Plan:    account.Plan,
		Credits: account.Credits,
	}
	if account.NextBillingAt != nil {
		t := *account.NextBillingAt
		info.NextBillingDate = &t
	}
	return info, nil
}

// ListLedger 返回用户最近的流水
func (s *AccountService) ListLedger(userID string, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.ledgerRepo.ListByUser(userID, limit)
}

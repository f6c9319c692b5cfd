package repository

import (
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(account *model.Account) error {
	return r.db.Create(account).Error
}

func (r *AccountRepository) GetByID(userID string) (*model.Account, error) {
	var account model.Account
	err := r.db.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByStripeSubscriptionID(subscriptionID string) (*model.Account, error) {
	var account model.Account
	err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByStripeCustomerID(customerID string) (*model.Account, error) {
	var account model.Account
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) UpdateFields(userID string, fields map[string]interface{}) error {
	return r.db.Model(&model.Account{}).Where("user_id = ?", userID).Updates(fields).Error
}

func (r *AccountRepository) ExistsByID(userID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Account{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Exists 事件是否已处理
func (r *EventRepository) Exists(eventID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ProcessedEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

// Mark 写入处理标记。只在副作用全部提交后调用；
// 主键冲突（并发重复投递）视为已处理，不算错误。
func (r *EventRepository) Mark(eventID, eventType string) error {
	marker := &model.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(marker).Error
}

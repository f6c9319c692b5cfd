// Package recon 退款补偿巡检：定期重试同步退款失败落库的 PendingRefund。
package recon

import (
	"encoding/json"
	"log"
	"time"

	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

const sweepBatchSize = 100

type Sweeper struct {
	refundRepo  *repository.PendingRefundRepository
	ledger      *service.LedgerService
	interval    time.Duration
	maxAttempts int
	stopChan    chan struct{}
}

func NewSweeper(refundRepo *repository.PendingRefundRepository, ledger *service.LedgerService, interval time.Duration, maxAttempts int) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Sweeper{
		refundRepo:  refundRepo,
		ledger:      ledger,
		interval:    interval,
		maxAttempts: maxAttempts,
		stopChan:    make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunNow()
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Printf("refund sweeper started, interval=%s", s.interval)
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
}

// RunNow 扫一轮未结算的补偿记录。
// 入账成功即结算；失败只加重试次数，超过上限的记录不再捞取（人工处理）。
func (s *Sweeper) RunNow() {
	refunds, err := s.refundRepo.ListUnsettled(s.maxAttempts, sweepBatchSize)
	if err != nil {
		log.Printf("refund sweeper: list unsettled failed: %v", err)
		return
	}

	for _, refund := range refunds {
		meta := map[string]interface{}{"pending_refund_id": refund.ID}
		if refund.Meta != "" {
			var orig map[string]interface{}
			if err := json.Unmarshal([]byte(refund.Meta), &orig); err == nil {
				for k, v := range orig {
					meta[k] = v
				}
			}
		}

		if _, err := s.ledger.Credit(refund.UserID, refund.Amount, refund.Reason, meta); err != nil {
			log.Printf("refund sweeper: retry refund %d for %s failed: %v", refund.ID, refund.UserID, err)
			if err := s.refundRepo.IncrementAttempts(refund.ID); err != nil {
				log.Printf("refund sweeper: bump attempts for %d failed: %v", refund.ID, err)
			}
			continue
		}

		if err := s.refundRepo.MarkSettled(refund.ID); err != nil {
			// 已入账但未结算：下一轮会重复入账，必须显式告警
			log.Printf("ALERT: refund %d credited but not settled: %v", refund.ID, err)
		} else {
			log.Printf("refund sweeper: settled refund %d (+%d credits for %s)", refund.ID, refund.Amount, refund.UserID)
		}
	}
}

package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
	"github.com/pixelmuse/pixelmuse_go_server/internal/testutil"
)

func setupSweeper(t *testing.T) (*Sweeper, *repository.PendingRefundRepository, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	refundRepo := repository.NewPendingRefundRepository(db)
	ledger := service.NewLedgerService(db, refundRepo)
	sweeper := NewSweeper(refundRepo, ledger, time.Minute, 3)
	return sweeper, refundRepo, db
}

func TestSweeper_SettlesPendingRefund(t *testing.T) {
	sweeper, refundRepo, db := setupSweeper(t)

	account := testutil.TestAccount(t, db, testutil.WithCredits(10))
	require.NoError(t, refundRepo.Create(&model.PendingRefund{
		UserID: account.UserID,
		Amount: 40,
		Reason: "refund_text_video",
	}))

	sweeper.RunNow()

	var got model.Account
	require.NoError(t, db.First(&got, "user_id = ?", account.UserID).Error)
	assert.Equal(t, int64(50), got.Credits)

	unsettled, err := refundRepo.ListUnsettled(3, 10)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}

func TestSweeper_BumpsAttemptsOnFailure(t *testing.T) {
	sweeper, refundRepo, _ := setupSweeper(t)

	// 账户不存在，入账必然失败
	require.NoError(t, refundRepo.Create(&model.PendingRefund{
		UserID: "ghost",
		Amount: 40,
		Reason: "refund_music",
	}))

	sweeper.RunNow()

	unsettled, err := refundRepo.ListUnsettled(3, 10)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, 1, unsettled[0].Attempts)
}

func TestSweeper_GivesUpAfterMaxAttempts(t *testing.T) {
	sweeper, refundRepo, _ := setupSweeper(t)

	require.NoError(t, refundRepo.Create(&model.PendingRefund{
		UserID: "ghost",
		Amount: 40,
		Reason: "refund_music",
	}))

	for i := 0; i < 5; i++ {
		sweeper.RunNow()
	}

	// 超过上限后不再捞取
	unsettled, err := refundRepo.ListUnsettled(3, 10)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}

// 迟到的补偿：账户后来出现时结算成功
func TestSweeper_SettlesAfterAccountAppears(t *testing.T) {
	sweeper, refundRepo, db := setupSweeper(t)

	require.NoError(t, refundRepo.Create(&model.PendingRefund{
		UserID: "late_user",
		Amount: 40,
		Reason: "refund_image",
	}))

	sweeper.RunNow() // 失败一次

	testutil.TestAccount(t, db, testutil.WithUserID("late_user"))
	sweeper.RunNow()

	var got model.Account
	require.NoError(t, db.First(&got, "user_id = ?", "late_user").Error)
	assert.Equal(t, int64(40), got.Credits)
}

package command

import (
	"context"
	"time"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

const defaultSweepBatchSize = 100

// SweepExpiredOutput は期限切れセッション回収の出力を定義します
type SweepExpiredOutput struct {
	Swept int
}

// SweepExpiredCommand は期限切れのアップロードセッションを中断するコマンドです
type SweepExpiredCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	storage           service.MultipartStorage
	txManager         repository.TransactionManager
	batchSize         int
	now               func() time.Time
}

// NewSweepExpiredCommand は新しいSweepExpiredCommandを作成します
func NewSweepExpiredCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	storage service.MultipartStorage,
	txManager repository.TransactionManager,
	batchSize int,
) *SweepExpiredCommand {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &SweepExpiredCommand{
		uploadSessionRepo: uploadSessionRepo,
		storage:           storage,
		txManager:         txManager,
		batchSize:         batchSize,
		now:               time.Now,
	}
}

// Execute は期限切れのactive/failedセッションをバッチ単位で中断します
func (c *SweepExpiredCommand) Execute(ctx context.Context) (*SweepExpiredOutput, error) {
	now := c.now()
	swept := 0

	for {
		if err := ctx.Err(); err != nil {
			return &SweepExpiredOutput{Swept: swept}, err
		}

		// 1. 期限切れセッションを取得
		expired, err := c.uploadSessionRepo.FindExpired(ctx, now, c.batchSize)
		if err != nil {
			return &SweepExpiredOutput{Swept: swept}, err
		}

		// 2. 1件ずつ中断
		progressed := 0
		for _, candidate := range expired {
			session, err := c.sweepOne(ctx, candidate)
			if err != nil {
				logger.Error(ctx, "failed to sweep upload session", "session_id", candidate.ID, "error", err)
				continue
			}
			if session != nil {
				abortStorage(ctx, c.storage, session)
				swept++
				progressed++
			}
		}

		// 3. 最後のバッチ、または進捗がない場合は終了
		if len(expired) < c.batchSize || progressed == 0 {
			break
		}
	}

	if swept > 0 {
		logger.Info(ctx, "swept expired upload sessions", "count", swept)
	}
	return &SweepExpiredOutput{Swept: swept}, nil
}

// sweepOne はロックを取得した上で状態を再確認してセッションを中断します
func (c *SweepExpiredCommand) sweepOne(ctx context.Context, candidate *entity.UploadSession) (*entity.UploadSession, error) {
	var aborted *entity.UploadSession
	err := c.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		session, err := c.uploadSessionRepo.FindByIDForUpdate(ctx, candidate.ID)
		if err != nil {
			return err
		}
		// ロック待ちの間に完了・中断された場合は対象外
		if session.IsCompleted() || session.IsAborted() || !session.IsExpired() {
			return nil
		}
		changed, err := abortSession(ctx, c.uploadSessionRepo, session)
		if err != nil {
			return err
		}
		if changed {
			aborted = session
		}
		return nil
	})
	return aborted, err
}

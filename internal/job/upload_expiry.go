package job

import (
	"context"
	"log/slog"

	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
)

// Sweeper は期限切れセッションを回収するユースケースです
type Sweeper interface {
	Execute(ctx context.Context) (*command.SweepExpiredOutput, error)
}

// UploadExpiryJob is a background job that aborts upload sessions past their expiry
// and releases the multipart uploads held in object storage.
type UploadExpiryJob struct {
	sweeper Sweeper
}

// NewUploadExpiryJob creates a new UploadExpiryJob.
func NewUploadExpiryJob(sweeper Sweeper) *UploadExpiryJob {
	return &UploadExpiryJob{sweeper: sweeper}
}

// Run sweeps expired sessions once.
func (j *UploadExpiryJob) Run(ctx context.Context) error {
	out, err := j.sweeper.Execute(ctx)
	if err != nil {
		return err
	}
	if out.Swept > 0 {
		slog.InfoContext(ctx, "upload expiry job: aborted expired sessions", "count", out.Swept)
	}
	return nil
}

package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultSweepInterval       = 5 * time.Minute
	defaultHealthCheckInterval = 5 * time.Minute
	healthCheckTimeout         = 10 * time.Second
)

// NewUploadSweepJob は期限切れアップロードセッションの回収ジョブを作成します。
// 1回の回収は interval を超えて実行されません。
func NewUploadSweepJob(sweepFn func(ctx context.Context) error, interval time.Duration) Job {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return Job{
		Name:     "upload_sweep",
		Interval: interval,
		Timeout:  interval,
		Fn:       sweepFn,
	}
}

// NewHealthCheckJob はセッションストアやストレージへの疎通を定期的に確認するジョブを作成します
func NewHealthCheckJob(name string, checkFn func(ctx context.Context) error) Job {
	return Job{
		Name:           "health_check:" + name,
		Interval:       defaultHealthCheckInterval,
		Timeout:        healthCheckTimeout,
		SkipInitialRun: true,
		Fn: func(ctx context.Context) error {
			if err := checkFn(ctx); err != nil {
				slog.Warn("health check failed", "target", name, "error", err)
				return err
			}
			return nil
		},
	}
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job は定期実行ジョブを定義します
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout が正の場合、1回の実行をその時間で打ち切ります
	Timeout time.Duration
	Fn      func(ctx context.Context) error
	// SkipInitialRun がtrueの場合、開始直後の実行を行わず最初のティックを待ちます
	SkipInitialRun bool
}

// Manager は登録されたジョブをそれぞれ専用のgoroutineで回します。
// 同じジョブの実行が重なることはありません。
type Manager struct {
	jobs   []Job
	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewManager() *Manager {
	return &Manager{}
}

// Register はジョブを登録します。Intervalが0以下、またはFnのないジョブは無視します。
// Start 後の登録は反映されません。
func (m *Manager) Register(job Job) {
	if job.Interval <= 0 || job.Fn == nil {
		slog.Warn("worker job ignored", "job", job.Name, "interval", job.Interval)
		return
	}
	m.jobs = append(m.jobs, job)
}

// Start は全ジョブを開始します。parent のキャンセルでも停止します。
func (m *Manager) Start(parent context.Context) {
	if m.group != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.group, ctx = errgroup.WithContext(ctx)

	for _, job := range m.jobs {
		m.group.Go(func() error {
			loop(ctx, job)
			return nil
		})
	}
	slog.Info("worker manager started", "jobs", len(m.jobs))
}

func loop(ctx context.Context, job Job) {
	log := slog.With("job", job.Name)
	log.Info("worker started", "interval", job.Interval)

	if !job.SkipInitialRun {
		runOnce(ctx, log, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		case <-ticker.C:
			runOnce(ctx, log, job)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, job Job) {
	if ctx.Err() != nil {
		return
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Fn(ctx); err != nil {
		log.Error("worker job failed", "error", err, "elapsed", time.Since(start))
		return
	}
	log.Debug("worker job finished", "elapsed", time.Since(start))
}

// Shutdown は全ジョブを停止し、実行中のジョブの終了を待ちます。
// timeout 内に終わらなかった場合falseを返します。
func (m *Manager) Shutdown(timeout time.Duration) bool {
	if m.group == nil {
		return true
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		_ = m.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker manager stopped")
		return true
	case <-time.After(timeout):
		slog.Warn("worker manager shutdown timed out", "timeout", timeout)
		return false
	}
}

package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/sirupsen/logrus"
)

// RecalcProcessor drains pending RecalcTask rows in the background. It
// is the safety net behind the synchronous cascade: a recalculation
// that failed right after a confirmation stays queued and is retried
// here until it succeeds. Safe to run on every instance; tasks are
// claimed with row locks and, when redis is configured, passes are
// additionally serialized with a distributed lock.
type RecalcProcessor struct {
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewRecalcProcessor(logger *logrus.Logger) *RecalcProcessor {
	return &RecalcProcessor{
		Logger:    logger,
		WorkerID:  "recalc-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func (p *RecalcProcessor) Run(ctx context.Context) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// ProcessOnce claims one batch of pending tasks and recalculates the
// affected variants. Exported so the cost-rebuild tool and tests can
// drive single passes.
func (p *RecalcProcessor) ProcessOnce(ctx context.Context) {
	if config.GetDB() == nil {
		return
	}

	// Cross-instance serialization is an optimization, not a correctness
	// requirement: passes are idempotent. Proceed without the lock when
	// redis is absent or busy.
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, err := redisLock.Obtain(ctx, "lock:recalc", p.LockTTL, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err != nil {
			p.Logger.WithFields(logrus.Fields{
				"module": "recalcDispatcher.go",
				"worker": p.WorkerID,
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
					p.Logger.WithFields(logrus.Fields{
						"module": "recalcDispatcher.go",
						"worker": p.WorkerID,
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	claimed, err := models.ClaimPendingRecalcTasks(ctx, p.WorkerID, p.BatchSize, p.LockTTL)
	if err != nil {
		config.LogError(p.Logger, "recalcDispatcher.go", "ProcessOnce", "ClaimPendingRecalcTasks", nil, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	taskIds := make([]int, 0, len(claimed))
	materialIds := make([]int, 0, len(claimed))
	laborTypeIds := make([]int, 0, len(claimed))
	for _, task := range claimed {
		taskIds = append(taskIds, task.ID)
		if task.RawMaterialId > 0 {
			materialIds = append(materialIds, task.RawMaterialId)
		}
		if task.LaborTypeId > 0 {
			laborTypeIds = append(laborTypeIds, task.LaborTypeId)
		}
	}

	if _, err := RecalculateForMaterials(ctx, materialIds); err != nil {
		p.release(ctx, taskIds, err)
		return
	}
	if _, err := RecalculateForLaborTypes(ctx, laborTypeIds); err != nil {
		p.release(ctx, taskIds, err)
		return
	}

	if err := models.MarkRecalcTasksDone(ctx, taskIds); err != nil {
		config.LogError(p.Logger, "recalcDispatcher.go", "ProcessOnce", "MarkRecalcTasksDone", taskIds, err)
	}
}

func (p *RecalcProcessor) release(ctx context.Context, taskIds []int, processErr error) {
	config.LogError(p.Logger, "recalcDispatcher.go", "ProcessOnce", "recalculate", taskIds, processErr)
	if err := models.ReleaseRecalcTasks(ctx, taskIds, processErr); err != nil {
		config.LogError(p.Logger, "recalcDispatcher.go", "ProcessOnce", "ReleaseRecalcTasks", taskIds, err)
	}
}

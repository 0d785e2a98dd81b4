package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/aetherhq/aether-backend/internal/domain"
	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// JobRunRepo persists job_run rows. Lookups return (nil, nil) on a miss.
type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	GetLatestByEntity(dbc dbctx.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnableForEntity(dbc dbctx.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

// entityKey addresses the jobs of one type attached to one entity.
type entityKey struct {
	orgID      uuid.UUID
	entityType string
	entityID   uuid.UUID
	jobType    string
}

func (k entityKey) valid() bool {
	return k.orgID != uuid.Nil && k.entityID != uuid.Nil && k.entityType != "" && k.jobType != ""
}

func (k entityKey) scope(q *gorm.DB) *gorm.DB {
	return q.Where("org_id = ? AND entity_type = ? AND entity_id = ? AND job_type = ?", k.orgID, k.entityType, k.entityID, k.jobType)
}

func (r *jobRunRepo) model(dbc dbctx.Context) *gorm.DB {
	return dbc.Conn(r.db).Model(&types.JobRun{})
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := dbc.Conn(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) first(q *gorm.DB) (*types.JobRun, error) {
	var job types.JobRun
	err := q.Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.Conn(r.db).Where("id = ?", id))
}

func (r *jobRunRepo) GetLatestByEntity(dbc dbctx.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	key := entityKey{orgID, entityType, entityID, jobType}
	if !key.valid() {
		return nil, nil
	}
	return r.first(key.scope(dbc.Conn(r.db)).Order("created_at DESC"))
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	key := entityKey{orgID, entityType, entityID, jobType}
	if !key.valid() {
		return false, nil
	}
	var n int64
	err := key.scope(r.model(dbc)).
		Where("status IN ?", []string{domainjobs.StatusQueued, domainjobs.StatusRunning}).
		Count(&n).Error
	return n > 0, err
}

// runnable matches queued jobs, failed jobs with attempts left whose retry
// delay has elapsed, and running jobs whose heartbeat went stale.
func runnable(now time.Time, maxAttempts int, retryDelay, staleRunning time.Duration) clause.Expr {
	return gorm.Expr(
		"status = ? OR (status = ? AND attempts < ? AND (last_error_at IS NULL OR last_error_at < ?)) OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)",
		domainjobs.StatusQueued,
		domainjobs.StatusFailed, maxAttempts, now.Add(-retryDelay),
		domainjobs.StatusRunning, now.Add(-staleRunning),
	)
}

// ClaimNextRunnable marks the oldest runnable job running and bumps its
// attempt count. SKIP LOCKED lets several pollers share the table.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error) {
	now := time.Now().UTC()
	var claimed *types.JobRun
	err := dbc.Conn(r.db).Transaction(func(tx *gorm.DB) error {
		job, err := r.first(tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(runnable(now, maxAttempts, retryDelay, staleRunning)).
			Order("created_at ASC"))
		if err != nil || job == nil {
			return err
		}
		if err := tx.Model(&types.JobRun{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":       domainjobs.StatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		job.Status = domainjobs.StatusRunning
		job.Attempts++
		job.LockedAt, job.HeartbeatAt = &now, &now
		claimed = job
		return nil
	})
	return claimed, err
}

func stampUpdated(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return updates
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	_, err := r.UpdateFieldsUnlessStatus(dbc, id, nil, updates)
	return err
}

// UpdateFieldsUnlessStatus reports whether a row was updated; a job already in
// one of disallowedStatuses is left untouched.
func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	q := r.model(dbc).Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(stampUpdated(updates))
	return res.RowsAffected > 0, res.Error
}

// Heartbeat only touches running jobs.
func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return r.model(dbc).
		Where("id = ? AND status = ?", id, domainjobs.StatusRunning).
		Updates(map[string]interface{}{"heartbeat_at": now, "updated_at": now}).Error
}

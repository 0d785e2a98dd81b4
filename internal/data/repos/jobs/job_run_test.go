package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aetherhq/aether-backend/internal/data/repos/testutil"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
)

func newJob(orgID uuid.UUID, jobType, status string, created time.Time) *types.JobRun {
	entityID := uuid.New()
	return &types.JobRun{
		ID:         uuid.New(),
		OrgID:      orgID,
		JobType:    jobType,
		EntityType: "upload",
		EntityID:   &entityID,
		Status:     status,
		Stage:      status,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	orgID := uuid.New()

	queued := newJob(orgID, "test_job", "queued", now.Add(-3*time.Hour))
	failed := newJob(orgID, "test_job", "failed", now.Add(-2*time.Hour))
	failed.LastErrorAt = ptrTime(now.Add(-2 * time.Hour))
	staleRunning := newJob(orgID, "test_job", "running", now.Add(-1*time.Hour))
	staleRunning.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("Create: expected 3, got %d", len(created))
	}

	if got, err := repo.GetByID(dbc, failed.ID); err != nil || got == nil || got.Status != "failed" {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got, err := repo.GetByID(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetByID missing: err=%v got=%v", err, got)
	}

	// GetLatestByEntity
	entityID := uuid.New()
	older := newJob(orgID, "build", "queued", now.Add(-5*time.Hour))
	older.EntityID = &entityID
	newer := newJob(orgID, "build", "queued", now.Add(-4*time.Hour))
	newer.EntityID = &entityID
	if _, err := repo.Create(dbc, []*types.JobRun{older, newer}); err != nil {
		t.Fatalf("seed latest: %v", err)
	}
	latest, err := repo.GetLatestByEntity(dbc, orgID, "upload", entityID, "build")
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != newer.ID {
		t.Fatalf("GetLatestByEntity: expected %v got %v", newer.ID, latest)
	}
	if err := repo.UpdateFields(dbc, older.ID, map[string]interface{}{"status": "succeeded"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := repo.UpdateFields(dbc, newer.ID, map[string]interface{}{"status": "succeeded"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	// ClaimNextRunnable should walk the runnable set in created_at ASC order.
	for i, want := range []uuid.UUID{queued.ID, failed.ID, staleRunning.ID} {
		claim, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != want {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, want, claim)
		}
		if claim.Status != "running" {
			t.Fatalf("ClaimNextRunnable #%d: status=%q", i+1, claim.Status)
		}
	}
	if claim, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour); err != nil || claim != nil {
		t.Fatalf("ClaimNextRunnable #4: expected nil, got %v err=%v", claim, err)
	}

	// UpdateFieldsUnlessStatus leaves canceled jobs alone.
	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{"status": "canceled"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{"canceled"}, map[string]interface{}{"status": "succeeded"})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus(canceled): ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, failed.ID, []string{"canceled"}, map[string]interface{}{"progress": 50})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus(running): ok=%v err=%v", ok, err)
	}

	if err := repo.Heartbeat(dbc, failed.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	has, err := repo.HasRunnableForEntity(dbc, orgID, "upload", *failed.EntityID, "test_job")
	if err != nil {
		t.Fatalf("HasRunnableForEntity: %v", err)
	}
	if !has {
		t.Fatalf("HasRunnableForEntity: expected true")
	}
	has, err = repo.HasRunnableForEntity(dbc, orgID, "upload", entityID, "build")
	if err != nil || has {
		t.Fatalf("HasRunnableForEntity(done): has=%v err=%v", has, err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
	"github.com/aetherhq/aether-backend/internal/pkg/ctxutil"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/services"
)

// Context is the handle a Handler receives for one claimed job run. Handlers
// report progress and the terminal state through it instead of writing
// job_run themselves.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  services.JobNotifier
	payload map[string]any
}

// NewContext decodes the payload eagerly. A malformed payload yields an empty
// map; handlers validate the fields they need.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{Ctx: ctx, DB: db, Job: job, Repo: repo, Notify: notify, payload: map[string]any{}}
	if job != nil && len(job.Payload) > 0 {
		_ = json.Unmarshal(job.Payload, &c.payload)
	}
	c.applyTraceData()
	return c
}

// applyTraceData restores the ids captured at enqueue time so handler logs
// correlate with the request that produced the job.
func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	if td := ctxutil.FromPayload(c.Payload()); td != nil {
		c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
	}
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID returns (uuid.Nil, false) when the key is missing or not a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s, _ := c.Payload()[key].(string)
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// update writes job_run fields unless the job was canceled meanwhile.
func (c *Context) update(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{domainjobs.StatusCanceled}, updates)
	return err == nil && ok
}

// Progress records a non-terminal stage and refreshes the heartbeat so the
// claim is not considered stale.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if !c.update(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
	}
}

// Fail marks the run failed. A canceled job is left untouched and no
// notification is sent.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	now := time.Now().UTC()
	if !c.update(domainjobs.FailedUpdates(stage, msg, now)) {
		return
	}
	if c.Job != nil {
		c.Job.MarkFailed(stage, msg, now)
	}
	if c.Notify != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			c.Fail(finalStage, fmt.Errorf("encode job result: %w", err))
			return
		}
		res = datatypes.JSON(b)
	}
	now := time.Now().UTC()
	if !c.update(domainjobs.SucceededUpdates(finalStage, res, now)) {
		return
	}
	if c.Job != nil {
		c.Job.MarkSucceeded(finalStage, res, now)
	}
	if c.Notify != nil {
		c.Notify.JobDone(c.Job)
	}
}

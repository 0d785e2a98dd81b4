package upload_pipeline

import (
	"fmt"

	jobrt "github.com/aetherhq/aether-backend/internal/jobs/runtime"
	"github.com/aetherhq/aether-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	orgID, ok := jc.PayloadUUID("org_id")
	if !ok {
		orgID = jc.Job.OrgID
	}
	uploadID, ok := jc.PayloadUUID("upload_id")
	if !ok && jc.Job.EntityID != nil {
		uploadID, ok = *jc.Job.EntityID, true
	}
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing upload_id"))
		return nil
	}

	jc.Progress("stages", 10, "Running pipeline stages")
	res, err := p.pipeline.Run(jc.Ctx, orgID, uploadID)
	if err != nil {
		p.log.Warn("pipeline run failed", "upload_id", uploadID, "error", err)
		jc.Fail("finalize", err)
		return nil
	}
	for _, st := range res.Stages {
		if st.Status == services.StageStatusError {
			p.log.Warn("pipeline stage failed", "upload_id", uploadID, "stage", st.Stage, "error", st.Error)
		}
	}
	jc.Succeed("done", res)
	return nil
}

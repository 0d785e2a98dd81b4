package services

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
)

// uploadView is the per-upload context needed to interpret its rows.
type uploadView struct {
	upload  *types.Upload
	headers []string
	mapping mapping.Mapping
}

func newUploadView(u *types.Upload) uploadView {
	return uploadView{
		upload:  u,
		headers: decodeHeaders(u.Headers),
		mapping: mapping.Parse(u.ColumnMapping),
	}
}

func decodeHeaders(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// decodeRow turns a stored row into a record. Rows whose fields cannot be
// decoded come back empty and are excluded by the date/metric checks.
func decodeRow(r *types.DataRow, headers []string) record.Row {
	rec, err := record.Decode(r.Fields, headers)
	if err != nil {
		rec = record.Row{}
	}
	if r.ResolvedDate != nil {
		rec.ResolvedDate = *r.ResolvedDate
	}
	return rec
}

// loadUploadViews fetches every upload referenced by rows, keyed by id.
func loadUploadViews(dbc dbctx.Context, uploads repos.UploadRepo, rows []*types.DataRow) (map[uuid.UUID]uploadView, error) {
	seen := map[uuid.UUID]struct{}{}
	ids := make([]uuid.UUID, 0)
	for _, r := range rows {
		if _, ok := seen[r.UploadID]; ok {
			continue
		}
		seen[r.UploadID] = struct{}{}
		ids = append(ids, r.UploadID)
	}
	list, err := uploads.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]uploadView, len(list))
	for _, u := range list {
		out[u.ID] = newUploadView(u)
	}
	return out, nil
}

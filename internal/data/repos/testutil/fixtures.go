package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/aetherhq/aether-backend/internal/domain"
)

func SeedUpload(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID uuid.UUID, dataType string, mapping string) *types.Upload {
	tb.Helper()
	u := &types.Upload{
		ID:       uuid.New(),
		OrgID:    orgID,
		FileName: "export.csv",
		DataType: dataType,
		Status:   types.UploadStatusProcessing,
	}
	if mapping != "" {
		u.ColumnMapping = datatypes.JSON([]byte(mapping))
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed upload: %v", err)
	}
	return u
}

// SeedRows inserts one DataRow per fields map. Keys are stored in the order
// given by headers; resolvedDates[i], when non-empty, pre-resolves row i.
func SeedRows(tb testing.TB, ctx context.Context, tx *gorm.DB, upload *types.Upload, headers []string, rows []map[string]any, resolvedDates ...string) []*types.DataRow {
	tb.Helper()
	out := make([]*types.DataRow, 0, len(rows))
	for i, fields := range rows {
		raw, err := marshalOrdered(headers, fields)
		if err != nil {
			tb.Fatalf("marshal row %d: %v", i, err)
		}
		r := &types.DataRow{
			ID:       uuid.New(),
			OrgID:    upload.OrgID,
			UploadID: upload.ID,
			RowIndex: i,
			Fields:   datatypes.JSON(raw),
		}
		if i < len(resolvedDates) && resolvedDates[i] != "" {
			d := resolvedDates[i]
			r.ResolvedDate = &d
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed rows: %v", err)
	}
	return out
}

func marshalOrdered(headers []string, fields map[string]any) ([]byte, error) {
	buf := []byte{'{'}
	n := 0
	for _, h := range headers {
		v, ok := fields[h]
		if !ok {
			continue
		}
		k, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, val...)
		n++
	}
	buf = append(buf, '}')
	return buf, nil
}

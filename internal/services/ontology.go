package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

const ontologySampleSize = 50

type OntologyEntity struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Kind   string `json:"kind"`
}

type OntologyRelationship struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Measure string `json:"measure"`
}

type OntologyGuess struct {
	Entities      []OntologyEntity       `json:"entities"`
	Measures      []string               `json:"measures"`
	Relationships []OntologyRelationship `json:"relationships"`
	Unclassified  []string               `json:"unclassified,omitempty"`
	Confidence    float64                `json:"confidence"`
}

// OntologyDetector guesses the entities and relationships a sheet describes.
type OntologyDetector interface {
	Name() string
	Detect(ctx context.Context, headers []string, sample []record.Row) (*OntologyGuess, error)
}

// HeuristicDetector classifies columns with the header keyword catalog:
// dimension and date columns become entities, numeric roles become measures
// related to every dimension entity.
type HeuristicDetector struct {
	cat *catalog.Catalog
}

func NewHeuristicDetector(cat *catalog.Catalog) *HeuristicDetector {
	if cat == nil {
		cat = catalog.Default()
	}
	return &HeuristicDetector{cat: cat}
}

func (d *HeuristicDetector) Name() string { return "heuristic" }

func (d *HeuristicDetector) Detect(ctx context.Context, headers []string, sample []record.Row) (*OntologyGuess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	guess := &OntologyGuess{
		Entities:      []OntologyEntity{},
		Measures:      []string{},
		Relationships: []OntologyRelationship{},
	}
	if len(headers) == 0 {
		return guess, nil
	}
	inferred := mapping.Infer(headers, sample, d.cat)
	roles := map[string]mapping.Role{}
	for _, a := range inferred {
		roles[a.Header] = a.Role
	}
	var dims []OntologyEntity
	for _, h := range headers {
		role, ok := roles[h]
		switch {
		case !ok:
			guess.Unclassified = append(guess.Unclassified, h)
		case role == mapping.RoleDimension:
			e := OntologyEntity{Name: record.NormalizeHeader(h), Column: h, Kind: "dimension"}
			dims = append(dims, e)
			guess.Entities = append(guess.Entities, e)
		case role == mapping.RoleDate:
			guess.Entities = append(guess.Entities, OntologyEntity{Name: "period", Column: h, Kind: "time"})
		default:
			guess.Measures = append(guess.Measures, h)
		}
	}
	for _, e := range dims {
		for _, m := range guess.Measures {
			guess.Relationships = append(guess.Relationships, OntologyRelationship{
				From:    e.Name,
				To:      string(roles[m]),
				Kind:    "measured_by",
				Measure: m,
			})
		}
	}
	matched := len(headers) - len(guess.Unclassified)
	guess.Confidence = math.Round(float64(matched)/float64(len(headers))*100) / 100
	return guess, nil
}

type OntologyResult struct {
	UploadID   uuid.UUID      `json:"upload_id"`
	Skipped    bool           `json:"skipped,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Detector   string         `json:"detector,omitempty"`
	Guess      *OntologyGuess `json:"guess,omitempty"`
	Confidence float64        `json:"confidence"`
}

type OntologyService interface {
	Detect(ctx context.Context, orgID, uploadID uuid.UUID) (*OntologyResult, error)
	Get(ctx context.Context, orgID, uploadID uuid.UUID) (*types.UploadOntology, error)
}

type ontologyService struct {
	db       *gorm.DB
	log      *logger.Logger
	uploads  repos.UploadRepo
	rows     repos.DataRowRepo
	store    repos.UploadOntologyRepo
	detector OntologyDetector
}

func NewOntologyService(db *gorm.DB, baseLog *logger.Logger, r repos.Repos, detector OntologyDetector) OntologyService {
	return &ontologyService{
		db:       db,
		log:      baseLog.With("service", "OntologyService"),
		uploads:  r.Uploads,
		rows:     r.DataRows,
		store:    r.UploadOntology,
		detector: detector,
	}
}

func (s *ontologyService) Detect(ctx context.Context, orgID, uploadID uuid.UUID) (*OntologyResult, error) {
	res := &OntologyResult{UploadID: uploadID}
	if s.detector == nil {
		res.Skipped, res.Reason = true, "detector_disabled"
		return res, nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	upload, err := s.uploads.GetForOrg(dbc, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("ontology: load upload", err)
	}
	if upload == nil {
		res.Skipped, res.Reason = true, "upload_not_found"
		return res, nil
	}
	view := newUploadView(upload)
	stored, err := s.rows.ListByUpload(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("ontology: load rows", err)
	}
	if len(stored) > ontologySampleSize {
		stored = stored[:ontologySampleSize]
	}
	sample := make([]record.Row, 0, len(stored))
	for _, r := range stored {
		sample = append(sample, decodeRow(r, view.headers))
	}

	headers := view.headers
	if len(headers) == 0 && len(sample) > 0 {
		headers = sample[0].Keys()
	}
	guess, err := s.detector.Detect(ctx, headers, sample)
	if err != nil {
		return nil, fmt.Errorf("ontology: detect: %w", err)
	}
	raw, err := json.Marshal(guess)
	if err != nil {
		return nil, fmt.Errorf("ontology: encode guess: %w", err)
	}
	if err := s.store.Upsert(dbc, &types.UploadOntology{
		UploadID:   uploadID,
		OrgID:      orgID,
		Detector:   s.detector.Name(),
		Guess:      datatypes.JSON(raw),
		Confidence: guess.Confidence,
	}); err != nil {
		return nil, db.Classify("ontology: store", err)
	}
	res.Detector = s.detector.Name()
	res.Guess = guess
	res.Confidence = guess.Confidence
	return res, nil
}

func (s *ontologyService) Get(ctx context.Context, orgID, uploadID uuid.UUID) (*types.UploadOntology, error) {
	row, err := s.store.GetByUpload(dbctx.Context{Ctx: ctx}, uploadID)
	if err != nil {
		return nil, db.Classify("ontology: get", err)
	}
	if row == nil || row.OrgID != orgID {
		return nil, nil
	}
	return row, nil
}

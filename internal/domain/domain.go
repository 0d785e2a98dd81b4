package domain

import (
	"github.com/aetherhq/aether-backend/internal/domain/ingest"
	"github.com/aetherhq/aether-backend/internal/domain/jobs"
)

type (
	Upload          = ingest.Upload
	DataRow         = ingest.DataRow
	KPISnapshot     = ingest.KPISnapshot
	SnapshotMetrics = ingest.SnapshotMetrics
	PerformanceGap  = ingest.PerformanceGap
	UploadOntology  = ingest.UploadOntology

	JobRun = jobs.JobRun
)

const (
	UploadStatusPending    = ingest.UploadStatusPending
	UploadStatusProcessing = ingest.UploadStatusProcessing
	UploadStatusReady      = ingest.UploadStatusReady
	UploadStatusError      = ingest.UploadStatusError

	PeriodDaily   = ingest.PeriodDaily
	PeriodWeekly  = ingest.PeriodWeekly
	PeriodMonthly = ingest.PeriodMonthly

	GapMetricRevenue    = ingest.GapMetricRevenue
	ExpectedFromColumn  = ingest.ExpectedFromColumn
	ExpectedFromWeekMax = ingest.ExpectedFromWeekMax
)

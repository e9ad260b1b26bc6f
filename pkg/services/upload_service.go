package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/logging"
	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/parsers"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
	"github.com/dataloom-io/loom-engine/pkg/typedetect"
)

// UploadService parses stored upload files into the record store and serves
// their datasets back to the pipeline.
type UploadService interface {
	// Ingest parses the upload's stored file, persists its rows and records
	// the inferred column metadata. Parse failures mark the upload failed and
	// are returned.
	Ingest(ctx context.Context, uploadID uuid.UUID) error

	Get(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Upload, error)

	// Dataset loads the upload's parsed rows and re-detects the schema.
	Dataset(ctx context.Context, uploadID uuid.UUID) (*models.Dataset, *models.Schema, error)
}

type uploadService struct {
	uploads repositories.UploadRepository
	rows    repositories.DataRowRepository
	logger  *zap.Logger
}

// NewUploadService creates the upload service.
func NewUploadService(uploads repositories.UploadRepository, rows repositories.DataRowRepository, logger *zap.Logger) UploadService {
	return &uploadService{
		uploads: uploads,
		rows:    rows,
		logger:  logger.Named("upload"),
	}
}

var _ UploadService = (*uploadService)(nil)

func (s *uploadService) Ingest(ctx context.Context, uploadID uuid.UUID) error {
	upload, err := s.uploads.Get(ctx, uploadID)
	if err != nil {
		return err
	}

	upload.Status = models.UploadStatusProcessing
	if err := s.uploads.Update(ctx, upload); err != nil {
		return err
	}

	result, err := parsers.Parse(upload.StoragePath, upload.OriginalFilename, upload.MimeType)
	if err != nil {
		return s.failUpload(ctx, upload, err)
	}

	// Rerun after a partial failure: old rows go first so row numbers stay
	// contiguous from 1.
	if err := s.rows.DeleteByUpload(ctx, uploadID); err != nil {
		return s.failUpload(ctx, upload, err)
	}
	n, err := s.rows.BulkInsert(ctx, uploadID, result.Rows)
	if err != nil {
		return s.failUpload(ctx, upload, err)
	}

	schema := typedetect.DetectSchema(&models.Dataset{Columns: result.Columns, Rows: result.Rows})

	if upload.Metadata == nil {
		upload.Metadata = models.JSONBMap{}
	}
	for k, v := range result.Metadata {
		upload.Metadata[k] = v
	}
	upload.Metadata["format"] = string(result.Kind)
	upload.Metadata["columns"] = toAnySlice(result.Columns)
	upload.Metadata["types"] = typesDoc(schema)

	upload.Status = models.UploadStatusCompleted
	upload.RecordsProcessed = n
	upload.TotalRecords = n
	upload.ErrorMessage = nil

	if err := s.uploads.Update(ctx, upload); err != nil {
		return err
	}

	s.logger.Info("ingested upload",
		zap.String("upload_id", uploadID.String()),
		zap.String("format", string(result.Kind)),
		zap.Int64("records", n),
		zap.Int("columns", len(result.Columns)))

	return nil
}

func (s *uploadService) failUpload(ctx context.Context, upload *models.Upload, cause error) error {
	// Persisted error detail must not reveal storage locations.
	msg := logging.ScrubPaths(cause.Error())
	upload.Status = models.UploadStatusFailed
	upload.ErrorMessage = &msg
	if err := s.uploads.Update(ctx, upload); err != nil {
		s.logger.Error("failed to mark upload failed",
			zap.String("upload_id", upload.ID.String()), zap.Error(err))
	}
	return cause
}

func (s *uploadService) Get(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	return s.uploads.Get(ctx, id)
}

func (s *uploadService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Upload, error) {
	return s.uploads.ListByProject(ctx, projectID)
}

func (s *uploadService) Dataset(ctx context.Context, uploadID uuid.UUID) (*models.Dataset, *models.Schema, error) {
	upload, err := s.uploads.Get(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	if upload.Status != models.UploadStatusCompleted {
		return nil, nil, fmt.Errorf("upload %s is %s, not completed", uploadID, upload.Status)
	}

	rows, err := s.rows.ListByUpload(ctx, uploadID, 0, 0)
	if err != nil {
		return nil, nil, err
	}

	ds := &models.Dataset{Columns: upload.Columns(), Rows: rows}
	if len(ds.Columns) == 0 && len(rows) > 0 {
		// Metadata predating column capture; fall back to the first row's
		// field set.
		for col := range rows[0].Cells {
			ds.Columns = append(ds.Columns, col)
		}
	}

	return ds, typedetect.DetectSchema(ds), nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func typesDoc(schema *models.Schema) map[string]any {
	doc := make(map[string]any, len(schema.Types))
	for col, typ := range schema.Types {
		doc[col] = string(typ)
	}
	return doc
}

package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/config"
	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
)

// UploadFile is one incoming file of a project-create call.
type UploadFile struct {
	Name     string
	MimeType string
	Content  io.Reader
}

// ProjectService owns the project lifecycle: creation with file ingestion,
// lookup, deletion with full artefact cleanup, and the project column union.
type ProjectService interface {
	CreateWithFiles(ctx context.Context, name, description string, files []UploadFile) (*models.Project, []models.Upload, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Columns returns the union of inferred columns across the project's
	// uploads, in first-seen order.
	Columns(ctx context.Context, id uuid.UUID) ([]string, error)
}

type projectService struct {
	cfg         config.UploadConfig
	projects    repositories.ProjectRepository
	uploadRepo  repositories.UploadRepository
	cleaningJob repositories.CleaningJobRepository
	views       repositories.ViewRepository
	cleanedData repositories.CleanedDataRepository
	uploads     UploadService
	files       FileStore
	runner      JobRunner
	logger      *zap.Logger
}

// NewProjectService creates the project service.
func NewProjectService(
	cfg config.UploadConfig,
	projects repositories.ProjectRepository,
	uploadRepo repositories.UploadRepository,
	cleaningJob repositories.CleaningJobRepository,
	views repositories.ViewRepository,
	cleanedData repositories.CleanedDataRepository,
	uploads UploadService,
	files FileStore,
	runner JobRunner,
	logger *zap.Logger,
) ProjectService {
	return &projectService{
		cfg:         cfg,
		projects:    projects,
		uploadRepo:  uploadRepo,
		cleaningJob: cleaningJob,
		views:       views,
		cleanedData: cleanedData,
		uploads:     uploads,
		files:       files,
		runner:      runner,
		logger:      logger.Named("project"),
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) CreateWithFiles(ctx context.Context, name, description string, files []UploadFile) (*models.Project, []models.Upload, error) {
	if name == "" {
		return nil, nil, apperrors.ConfigError("project name is required")
	}
	if len(files) == 0 {
		return nil, nil, apperrors.ConfigError("at least one file is required")
	}
	if len(files) > s.cfg.MaxFilesPerRequest {
		return nil, nil, apperrors.ConfigError("too many files: %d exceeds the limit of %d", len(files), s.cfg.MaxFilesPerRequest)
	}
	for _, f := range files {
		if !s.extensionAllowed(f.Name) {
			return nil, nil, apperrors.UnsupportedFormat("file extension of %q is not accepted; allowed: %s",
				f.Name, strings.Join(s.cfg.AllowedExtensions, ", "))
		}
	}

	project := &models.Project{
		Name:        name,
		Description: description,
		Status:      models.ProjectStatusActive,
		FileCount:   len(files),
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, nil, err
	}

	var uploads []models.Upload
	for _, f := range files {
		stored, err := s.files.Save(f.Name, f.Content, s.cfg.MaxFileSizeBytes())
		if err != nil {
			return nil, nil, err
		}

		upload := &models.Upload{
			ProjectID:        project.ID,
			OriginalFilename: f.Name,
			StoredFilename:   stored.StoredName,
			MimeType:         f.MimeType,
			SizeBytes:        stored.Size,
			StoragePath:      stored.Path,
			Status:           models.UploadStatusQueued,
		}
		if err := s.uploadRepo.Create(ctx, upload); err != nil {
			return nil, nil, err
		}

		uploadID := upload.ID
		err = s.runner.Submit(ctx, Job{
			Key:   "ingest:" + uploadID.String(),
			Name:  "ingest " + f.Name,
			Heavy: true,
			Run: func(runCtx context.Context) error {
				if err := s.uploads.Ingest(runCtx, uploadID); err != nil {
					return err
				}
				return s.refreshTotals(runCtx, project.ID)
			},
		})
		if err != nil {
			return nil, nil, err
		}
	}

	// With the inline runner ingestion has already happened; re-read so the
	// response carries record counts. With the queue runner callers poll.
	uploads, err := s.uploadRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, err
	}
	project, err = s.projects.Get(ctx, project.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("created project",
		zap.String("project_id", project.ID.String()),
		zap.Int("files", len(files)))

	return project, uploads, nil
}

// refreshTotals recomputes the project's file and record counters from its
// uploads.
func (s *projectService) refreshTotals(ctx context.Context, projectID uuid.UUID) error {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	uploads, err := s.uploadRepo.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}

	project.FileCount = len(uploads)
	project.TotalRecords = 0
	for _, u := range uploads {
		project.TotalRecords += u.TotalRecords
	}
	return s.projects.Update(ctx, project)
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *projectService) List(ctx context.Context) ([]models.Project, error) {
	return s.projects.List(ctx)
}

// Delete removes the project, its stored files, its cleaned tables and its
// views. Record-store rows cascade with the project row.
func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	uploads, err := s.uploadRepo.ListByProject(ctx, id)
	if err != nil {
		return err
	}

	views, err := s.views.ListByProject(ctx, id)
	if err != nil {
		return err
	}
	for _, view := range views {
		if err := s.cleanedData.DropView(ctx, view.ViewName); err != nil {
			s.logger.Warn("failed to drop unified view",
				zap.String("view", view.ViewName), zap.Error(err))
		}
	}

	for _, upload := range uploads {
		if upload.TableName != "" {
			if err := s.cleanedData.DropTable(ctx, upload.TableName); err != nil {
				s.logger.Warn("failed to drop cleaned table",
					zap.String("table", upload.TableName), zap.Error(err))
			}
		}
		if upload.StoragePath != "" {
			if err := s.files.Remove(upload.StoragePath); err != nil {
				s.logger.Warn("failed to remove upload file",
					zap.String("upload_id", upload.ID.String()), zap.Error(err))
			}
		}
	}

	return s.projects.Delete(ctx, id)
}

func (s *projectService) Columns(ctx context.Context, id uuid.UUID) ([]string, error) {
	if _, err := s.projects.Get(ctx, id); err != nil {
		return nil, err
	}
	uploads, err := s.uploadRepo.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var union []string
	for _, upload := range uploads {
		for _, col := range upload.Columns() {
			if !seen[col] {
				seen[col] = true
				union = append(union, col)
			}
		}
	}
	return union, nil
}

func (s *projectService) extensionAllowed(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
	"github.com/dataloom-io/loom-engine/pkg/typedetect"
)

// kpiSampleRows bounds how many view rows are sampled for type detection
// before KPI extraction.
const kpiSampleRows = 500

// AutoCompleteResult is the composite payload of an end-to-end run. On
// failure the fields populated before the failing stage remain set.
type AutoCompleteResult struct {
	Domain        *models.DomainDetectionJob `json:"domain,omitempty"`
	Relationships []models.Relationship      `json:"relationships,omitempty"`
	Views         []models.UnifiedView       `json:"views,omitempty"`
	KpiJob        *models.KpiExtractionJob   `json:"kpi_job,omitempty"`
	Selected      []models.SelectedKpi       `json:"selected_kpis,omitempty"`
	Dashboard     *models.Dashboard          `json:"dashboard,omitempty"`
}

// ProjectOrchestrator stages the project-level pipeline: cleaning fan-out,
// then domain, relationships, view, KPIs and dashboard strictly in order.
type ProjectOrchestrator interface {
	// CleanProject starts one cleaning job per upload with auto-derived
	// configuration. Jobs run in parallel under the runner's bound.
	CleanProject(ctx context.Context, projectID uuid.UUID) ([]models.CleaningJob, error)

	// DetectDomain classifies the union of cleaned columns. An empty
	// cleaningJobIDs means the latest job of every upload.
	DetectDomain(ctx context.Context, projectID uuid.UUID, cleaningJobIDs []uuid.UUID) (*models.DomainDetectionJob, error)
	ConfirmDomain(ctx context.Context, domainJobID uuid.UUID, selectedDomain string) (*models.DomainDetectionJob, error)
	DomainStatus(ctx context.Context, domainJobID uuid.UUID) (*models.DomainDetectionJob, error)

	DetectRelationships(ctx context.Context, projectID uuid.UUID) ([]models.Relationship, error)
	CreateUnifiedViews(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error)

	ExtractKpis(ctx context.Context, projectID uuid.UUID) (*models.KpiExtractionJob, error)
	KpiStatus(ctx context.Context, kpiJobID uuid.UUID) (*models.KpiExtractionJob, error)
	SelectKpis(ctx context.Context, kpiJobID uuid.UUID, kpiIDs []string) ([]models.SelectedKpi, error)

	GenerateDashboard(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error)
	Dashboard(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error)

	// AutoComplete runs domain, relationships, view, KPI extraction (with
	// automatic top-KPI selection) and dashboard assembly, failing fast with
	// the first stage's error. Artefacts of completed stages stay in place.
	AutoComplete(ctx context.Context, projectID uuid.UUID) (*AutoCompleteResult, error)
}

type projectOrchestrator struct {
	projects      repositories.ProjectRepository
	uploadRepo    repositories.UploadRepository
	cleaningJobs  repositories.CleaningJobRepository
	domainJobs    repositories.DomainJobRepository
	relationships repositories.RelationshipRepository
	viewRepo      repositories.ViewRepository
	kpiRepo       repositories.KpiRepository
	dashboards    repositories.DashboardRepository
	cleanedData   repositories.CleanedDataRepository

	cleaning   CleaningService
	classifier DomainClassifier
	detector   RelationshipDetector
	generator  ViewGenerator
	extractor  KpiExtractor
	assembler  DashboardAssembler

	logger *zap.Logger
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Projects      repositories.ProjectRepository
	Uploads       repositories.UploadRepository
	CleaningJobs  repositories.CleaningJobRepository
	DomainJobs    repositories.DomainJobRepository
	Relationships repositories.RelationshipRepository
	Views         repositories.ViewRepository
	Kpis          repositories.KpiRepository
	Dashboards    repositories.DashboardRepository
	CleanedData   repositories.CleanedDataRepository

	Cleaning   CleaningService
	Classifier DomainClassifier
	Detector   RelationshipDetector
	Generator  ViewGenerator
	Extractor  KpiExtractor
	Assembler  DashboardAssembler
}

// NewProjectOrchestrator creates the orchestrator.
func NewProjectOrchestrator(deps OrchestratorDeps, logger *zap.Logger) ProjectOrchestrator {
	return &projectOrchestrator{
		projects:      deps.Projects,
		uploadRepo:    deps.Uploads,
		cleaningJobs:  deps.CleaningJobs,
		domainJobs:    deps.DomainJobs,
		relationships: deps.Relationships,
		viewRepo:      deps.Views,
		kpiRepo:       deps.Kpis,
		dashboards:    deps.Dashboards,
		cleanedData:   deps.CleanedData,
		cleaning:      deps.Cleaning,
		classifier:    deps.Classifier,
		detector:      deps.Detector,
		generator:     deps.Generator,
		extractor:     deps.Extractor,
		assembler:     deps.Assembler,
		logger:        logger.Named("orchestrator"),
	}
}

var _ ProjectOrchestrator = (*projectOrchestrator)(nil)

func (o *projectOrchestrator) CleanProject(ctx context.Context, projectID uuid.UUID) ([]models.CleaningJob, error) {
	uploads, err := o.uploadRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, apperrors.PreconditionFailed("project %s has no uploads", projectID)
	}

	var jobs []models.CleaningJob
	for _, upload := range uploads {
		if upload.Status != models.UploadStatusCompleted {
			return jobs, apperrors.PreconditionFailed("upload %s is %s; all uploads must be parsed before cleaning", upload.ID, upload.Status)
		}
		job, err := o.cleaning.StartJob(ctx, upload.ID, nil)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// completedCleaningJobs resolves the project's cleaning job set and requires
// every job to be completed.
func (o *projectOrchestrator) completedCleaningJobs(ctx context.Context, projectID uuid.UUID, cleaningJobIDs []uuid.UUID) ([]models.CleaningJob, error) {
	var jobs []models.CleaningJob

	if len(cleaningJobIDs) > 0 {
		for _, id := range cleaningJobIDs {
			job, err := o.cleaningJobs.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if job.ProjectID != projectID {
				return nil, apperrors.PreconditionFailed("cleaning job %s does not belong to project %s", id, projectID)
			}
			jobs = append(jobs, *job)
		}
	} else {
		uploads, err := o.uploadRepo.ListByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, upload := range uploads {
			job, err := o.cleaningJobs.GetLatestByUpload(ctx, upload.ID)
			if err != nil {
				if err == apperrors.ErrNotFound {
					return nil, apperrors.PreconditionFailed("upload %s has not been cleaned", upload.ID)
				}
				return nil, err
			}
			jobs = append(jobs, *job)
		}
	}

	if len(jobs) == 0 {
		return nil, apperrors.PreconditionFailed("project %s has no cleaning jobs", projectID)
	}
	for _, job := range jobs {
		if job.Status != models.CleaningJobCompleted {
			return nil, apperrors.PreconditionFailed("cleaning job %s is %s; all cleaning jobs must be completed", job.ID, job.Status)
		}
	}
	return jobs, nil
}

// loadTableData materialises the cleaned tables for cross-table analysis.
func (o *projectOrchestrator) loadTableData(ctx context.Context, jobs []models.CleaningJob) ([]TableData, error) {
	tables := make([]TableData, 0, len(jobs))
	for _, job := range jobs {
		data, err := o.cleanedData.Query(ctx, job.CleanedTable, 0, 0)
		if err != nil {
			return nil, err
		}
		ds := &models.Dataset{Columns: data.Columns, Rows: data.Rows}
		tables = append(tables, TableData{
			Name:          job.CleanedTable,
			UploadID:      job.UploadID,
			CleaningJobID: job.ID,
			Dataset:       ds,
			Schema:        typedetect.DetectSchema(ds),
			CreatedAt:     job.CreatedAt,
		})
	}
	return tables, nil
}

func (o *projectOrchestrator) DetectDomain(ctx context.Context, projectID uuid.UUID, cleaningJobIDs []uuid.UUID) (*models.DomainDetectionJob, error) {
	project, err := o.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.completedCleaningJobs(ctx, projectID, cleaningJobIDs)
	if err != nil {
		return nil, err
	}

	// The column universe is the union across cleaned tables, in upload
	// order.
	seen := make(map[string]bool)
	var columns []string
	jobIDs := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.ID)
		upload, err := o.uploadRepo.Get(ctx, job.UploadID)
		if err != nil {
			return nil, err
		}
		for _, col := range upload.Columns() {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	result := o.classifier.Classify(columns)

	domainJob := &models.DomainDetectionJob{
		ProjectID:      projectID,
		CleaningJobIDs: jobIDs,
		Domain:         result.Domain,
		Confidence:     result.Confidence,
		Decision:       result.Decision,
		PrimaryMatches: result.PrimaryMatches,
		KeywordMatches: result.KeywordMatches,
		Top3:           result.Top3,
		AllScores:      result.AllScores,
		Status:         models.DomainJobCompleted,
	}
	if err := o.domainJobs.Create(ctx, domainJob); err != nil {
		return nil, err
	}

	if result.Decision == models.DecisionAutoDetect {
		project.DetectedDomain = &domainJob.Domain
		if err := o.projects.Update(ctx, project); err != nil {
			return nil, err
		}
	}

	return domainJob, nil
}

func (o *projectOrchestrator) ConfirmDomain(ctx context.Context, domainJobID uuid.UUID, selectedDomain string) (*models.DomainDetectionJob, error) {
	if _, ok := LookupDomain(selectedDomain); !ok {
		return nil, apperrors.NewPipelineError(apperrors.TagUnknownDomain, "domain %q is not in the signature library", selectedDomain)
	}

	job, err := o.domainJobs.Get(ctx, domainJobID)
	if err != nil {
		return nil, err
	}

	job.Domain = selectedDomain
	job.Decision = models.DecisionConfirmed
	job.Status = models.DomainJobConfirmed
	if err := o.domainJobs.Update(ctx, job); err != nil {
		return nil, err
	}

	project, err := o.projects.Get(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	project.DetectedDomain = &job.Domain
	if err := o.projects.Update(ctx, project); err != nil {
		return nil, err
	}

	return job, nil
}

func (o *projectOrchestrator) DomainStatus(ctx context.Context, domainJobID uuid.UUID) (*models.DomainDetectionJob, error) {
	return o.domainJobs.Get(ctx, domainJobID)
}

func (o *projectOrchestrator) DetectRelationships(ctx context.Context, projectID uuid.UUID) ([]models.Relationship, error) {
	uploads, err := o.uploadRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(uploads) < 2 {
		return nil, apperrors.PreconditionFailed("relationship detection needs at least two uploads, project %s has %d", projectID, len(uploads))
	}

	jobs, err := o.completedCleaningJobs(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}
	tables, err := o.loadTableData(ctx, jobs)
	if err != nil {
		return nil, err
	}

	detected := o.detector.Detect(projectID, tables)
	if err := o.relationships.ReplaceForProject(ctx, projectID, detected); err != nil {
		return nil, err
	}

	return o.relationships.ListByProject(ctx, projectID)
}

func (o *projectOrchestrator) CreateUnifiedViews(ctx context.Context, projectID uuid.UUID) ([]models.UnifiedView, error) {
	rels, err := o.relationships.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.completedCleaningJobs(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}
	tables, err := o.loadTableData(ctx, jobs)
	if err != nil {
		return nil, err
	}

	views, err := o.generator.Generate(projectID, rels, tables)
	if err != nil {
		return nil, err
	}

	// Old views are dropped before their replacements exist; metadata rows
	// flip active in one transaction so readers see old or new, not both.
	previous, err := o.viewRepo.GetActiveByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, view := range previous {
		if err := o.cleanedData.DropView(ctx, view.ViewName); err != nil {
			o.logger.Warn("failed to drop previous unified view",
				zap.String("view", view.ViewName), zap.Error(err))
		}
	}
	for _, view := range views {
		if err := o.cleanedData.ExecViewSQL(ctx, view.ViewSQL); err != nil {
			return nil, err
		}
	}
	if err := o.viewRepo.ReplaceForProject(ctx, projectID, views); err != nil {
		return nil, err
	}

	return views, nil
}

// usableDomain returns the project's effective domain, requiring either a
// user confirmation or a high-confidence auto detection.
func (o *projectOrchestrator) usableDomain(ctx context.Context, projectID uuid.UUID) (*models.DomainDetectionJob, error) {
	job, err := o.domainJobs.GetLatestByProject(ctx, projectID)
	if err != nil {
		if err == apperrors.ErrNotFound {
			return nil, apperrors.PreconditionFailed("project %s has no domain detection; run domain detection first", projectID)
		}
		return nil, err
	}
	if job.Status != models.DomainJobConfirmed && job.Decision != models.DecisionAutoDetect {
		return nil, apperrors.PreconditionFailed("domain for project %s needs confirmation (decision %s)", projectID, job.Decision)
	}
	return job, nil
}

// viewColumns samples the project's primary active view for its column set
// and detected types.
func (o *projectOrchestrator) viewColumns(ctx context.Context, projectID uuid.UUID) (viewName string, columns []string, types map[string]models.ColumnType, rowCount int64, err error) {
	views, err := o.viewRepo.GetActiveByProject(ctx, projectID)
	if err != nil {
		return "", nil, nil, 0, err
	}
	if len(views) == 0 {
		return "", nil, nil, 0, apperrors.PreconditionFailed("project %s has no unified view; create one first", projectID)
	}

	view := views[0]
	data, err := o.cleanedData.Query(ctx, view.ViewName, kpiSampleRows, 0)
	if err != nil {
		return "", nil, nil, 0, err
	}
	rowCount, err = o.cleanedData.CountRows(ctx, view.ViewName)
	if err != nil {
		return "", nil, nil, 0, err
	}

	ds := &models.Dataset{Columns: data.Columns, Rows: data.Rows}
	schema := typedetect.DetectSchema(ds)
	return view.ViewName, data.Columns, schema.Types, rowCount, nil
}

func (o *projectOrchestrator) ExtractKpis(ctx context.Context, projectID uuid.UUID) (*models.KpiExtractionJob, error) {
	domainJob, err := o.usableDomain(ctx, projectID)
	if err != nil {
		return nil, err
	}

	_, columns, types, _, err := o.viewColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}

	job, err := o.extractor.Extract(domainJob.Domain, columns, types)
	if err != nil {
		return nil, err
	}
	job.ProjectID = projectID
	if err := o.kpiRepo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (o *projectOrchestrator) KpiStatus(ctx context.Context, kpiJobID uuid.UUID) (*models.KpiExtractionJob, error) {
	return o.kpiRepo.GetJob(ctx, kpiJobID)
}

func (o *projectOrchestrator) SelectKpis(ctx context.Context, kpiJobID uuid.UUID, kpiIDs []string) ([]models.SelectedKpi, error) {
	job, err := o.kpiRepo.GetJob(ctx, kpiJobID)
	if err != nil {
		return nil, err
	}

	feasible := make(map[string]models.RankedKpi, len(job.AllFeasible))
	for _, kpi := range job.AllFeasible {
		feasible[kpi.KpiID] = kpi
	}

	var selections []models.SelectedKpi
	for _, id := range kpiIDs {
		kpi, ok := feasible[id]
		if !ok {
			return nil, apperrors.ConfigError("KPI %q is not in the job's feasible set", id)
		}
		selections = append(selections, models.SelectedKpi{
			ProjectID:       job.ProjectID,
			KpiJobID:        job.ID,
			KpiID:           kpi.KpiID,
			Name:            kpi.Name,
			FormulaExpr:     kpi.FormulaExpr,
			ColumnsNeeded:   kpi.ColumnsNeeded,
			ResolvedColumns: kpi.ResolvedColumns,
			Priority:        kpi.Priority,
			Category:        kpi.Category,
			ChartHint:       kpi.ChartHint,
		})
	}

	if err := o.kpiRepo.ReplaceSelections(ctx, job.ProjectID, selections); err != nil {
		return nil, err
	}
	return o.kpiRepo.ListSelections(ctx, job.ProjectID)
}

func (o *projectOrchestrator) GenerateDashboard(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error) {
	project, err := o.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	selections, err := o.kpiRepo.ListSelections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		return nil, apperrors.PreconditionFailed("project %s has no selected KPIs; select KPIs first", projectID)
	}

	viewName, _, types, rowCount, err := o.viewColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}

	domain := ""
	if project.DetectedDomain != nil {
		domain = *project.DetectedDomain
	}

	config := o.assembler.Assemble(selections, types, models.DashboardMetadata{
		Domain:   domain,
		ViewName: viewName,
		RowCount: rowCount,
	})

	dashboard := &models.Dashboard{
		ProjectID:   projectID,
		Title:       project.Name,
		Description: project.Description,
		Config:      *config,
		Status:      models.DashboardReady,
	}
	if err := o.dashboards.Upsert(ctx, dashboard); err != nil {
		return nil, err
	}
	return dashboard, nil
}

func (o *projectOrchestrator) Dashboard(ctx context.Context, projectID uuid.UUID) (*models.Dashboard, error) {
	return o.dashboards.GetByProject(ctx, projectID)
}

func (o *projectOrchestrator) AutoComplete(ctx context.Context, projectID uuid.UUID) (*AutoCompleteResult, error) {
	project, err := o.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectStatusProcessing {
		return nil, apperrors.PreconditionFailed("project %s is already processing", projectID)
	}
	if err := o.projects.UpdateStatus(ctx, projectID, models.ProjectStatusProcessing); err != nil {
		return nil, err
	}

	result := &AutoCompleteResult{}
	err = o.runAutoComplete(ctx, projectID, result)

	final := models.ProjectStatusCompleted
	if err != nil {
		final = models.ProjectStatusFailed
	}
	if statusErr := o.projects.UpdateStatus(context.WithoutCancel(ctx), projectID, final); statusErr != nil {
		o.logger.Error("failed to finalise project status",
			zap.String("project_id", projectID.String()), zap.Error(statusErr))
	}

	return result, err
}

// runAutoComplete executes the stage chain, failing fast. Artefacts of
// completed stages are already persisted when a later stage fails.
func (o *projectOrchestrator) runAutoComplete(ctx context.Context, projectID uuid.UUID, result *AutoCompleteResult) error {
	domainJob, err := o.DetectDomain(ctx, projectID, nil)
	if err != nil {
		return err
	}
	result.Domain = domainJob

	if domainJob.Status != models.DomainJobConfirmed && domainJob.Decision != models.DecisionAutoDetect {
		return apperrors.PreconditionFailed("domain confidence %d%% needs manual confirmation", domainJob.Confidence)
	}

	rels, err := o.DetectRelationships(ctx, projectID)
	if err != nil {
		return err
	}
	result.Relationships = rels

	views, err := o.CreateUnifiedViews(ctx, projectID)
	if err != nil {
		return err
	}
	result.Views = views

	kpiJob, err := o.ExtractKpis(ctx, projectID)
	if err != nil {
		return err
	}
	result.KpiJob = kpiJob

	ids := make([]string, 0, len(kpiJob.TopKpis))
	for _, kpi := range kpiJob.TopKpis {
		ids = append(ids, kpi.KpiID)
	}
	if len(ids) == 0 {
		return apperrors.PreconditionFailed("no feasible KPIs for domain %q", kpiJob.Domain)
	}
	selected, err := o.SelectKpis(ctx, kpiJob.ID, ids)
	if err != nil {
		return err
	}
	result.Selected = selected

	dashboard, err := o.GenerateDashboard(ctx, projectID)
	if err != nil {
		return err
	}
	result.Dashboard = dashboard

	o.logger.Info("auto-complete finished",
		zap.String("project_id", projectID.String()),
		zap.String("domain", domainJob.Domain),
		zap.Int("relationships", len(rels)),
		zap.Int("views", len(views)),
		zap.Int("selected_kpis", len(selected)))

	return nil
}

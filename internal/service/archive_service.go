package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	"github.com/noah-isme/resto-audit-api/pkg/cache"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

type archiveStore interface {
	ArchiveExecution(ctx context.Context, archive *models.AuditArchive) error
	ExistsForExecution(ctx context.Context, tenantID, executionID string) (bool, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.AuditArchive, error)
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.AuditArchive, int, error)
	Stats(ctx context.Context, tenantID string) (*models.ArchiveStats, error)
}

type archiveActionLister interface {
	ListByNonConformities(ctx context.Context, tenantID string, ids []string) ([]models.CorrectiveAction, error)
}

// ArchiveConfig tunes the archive service.
type ArchiveConfig struct {
	Clock         Clock
	StatsCacheTTL time.Duration
}

// AuditArchiveService freezes closed executions into immutable archive records.
type AuditArchiveService struct {
	repo       archiveStore
	executions executionReader
	templates  templateReader
	findings   executionFindingReader
	actions    archiveActionLister
	cache      *CacheService
	exporter   *ArchiveExporter
	audit      auditLogger
	events     eventEmitter
	metrics    *MetricsService
	cfg        ArchiveConfig
	logger     *zap.Logger
}

// NewAuditArchiveService constructs the archive service.
func NewAuditArchiveService(
	repo archiveStore,
	executions executionReader,
	templates templateReader,
	findings executionFindingReader,
	actions archiveActionLister,
	cacheSvc *CacheService,
	exporter *ArchiveExporter,
	audit auditLogger,
	events eventEmitter,
	metrics *MetricsService,
	cfg ArchiveConfig,
	logger *zap.Logger,
) *AuditArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewArchiveExporter(nil, nil)
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 10 * time.Minute
	}
	return &AuditArchiveService{
		repo:       repo,
		executions: executions,
		templates:  templates,
		findings:   findings,
		actions:    actions,
		cache:      cacheSvc,
		exporter:   exporter,
		audit:      audit,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// ArchiveExecution snapshots a completed or reviewed execution and removes the live rows.
func (s *AuditArchiveService) ArchiveExecution(ctx context.Context, executionID string, actor *models.AuthorizationContext) (*models.AuditArchive, error) {
	if err := requireSupervisor(actor, "only managers and admins can archive audits"); err != nil {
		return nil, err
	}
	exec, err := s.executions.GetByID(ctx, actor.TenantID, executionID)
	if err != nil {
		if isNoRows(err) {
			return nil, s.missingExecution(ctx, actor.TenantID, executionID)
		}
		return nil, internalError(err, "failed to load audit execution")
	}
	if !exec.Status.IsCloseable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s audit cannot be archived; complete it first", exec.Status))
	}

	archive, err := s.snapshot(ctx, exec, actor)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ArchiveExecution(ctx, archive); err != nil {
		switch {
		case errors.Is(err, repository.ErrExecutionNotClosed):
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit is no longer completed or reviewed")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit already archived")
		case isNoRows(err):
			return nil, s.missingExecution(ctx, actor.TenantID, executionID)
		}
		return nil, internalError(err, "failed to archive audit")
	}

	s.metrics.ArchiveCreated(string(archive.TemplateCategory))
	s.cache.Invalidate(ctx, statsCacheKey(actor.TenantID))
	emitAudit(ctx, s.audit, s.logger, "archive-service", actor, auditEntry{
		Action:     models.AuditActionExecutionArchive,
		Resource:   "audit_archive",
		ResourceID: archive.ID,
		Old:        map[string]string{"execution_id": exec.ID, "status": string(exec.Status)},
		New:        map[string]interface{}{"archive_id": archive.ID, "score_percentage": archive.ScorePercentage},
	})
	emitEvent(ctx, s.events, models.DomainEvent{
		Type:       models.EventExecutionArchive,
		TenantID:   actor.TenantID,
		ActorID:    actor.UserID,
		Recipients: []string{exec.InspectorID},
		Payload: map[string]interface{}{
			"archive_id":       archive.ID,
			"execution_id":     exec.ID,
			"restaurant_name":  archive.RestaurantName,
			"template_name":    archive.TemplateName,
			"score_percentage": archive.ScorePercentage,
		},
	})
	return archive, nil
}

// List returns tenant archives matching the query.
func (s *AuditArchiveService) List(ctx context.Context, query dto.ArchiveQuery, actor *models.AuthorizationContext) ([]models.AuditArchive, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter := models.ArchiveFilter{
		TenantID:       actor.TenantID,
		RestaurantName: strings.TrimSpace(query.RestaurantName),
		InspectorName:  strings.TrimSpace(query.InspectorName),
		MinScore:       query.MinScore,
		MaxScore:       query.MaxScore,
		PageRequest:    models.PageRequest{Page: query.Page, PageSize: query.PageSize},
	}
	if category := strings.TrimSpace(query.Category); category != "" {
		filter.Category = models.TemplateCategory(category)
		if !filter.Category.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown template category %q", category))
		}
	}
	loc := s.cfg.Clock.location()
	if raw := strings.TrimSpace(query.DateFrom); raw != "" {
		from, err := parseDay(raw, loc)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD or RFC3339")
		}
		filter.DateFrom = &from
	}
	if raw := strings.TrimSpace(query.DateTo); raw != "" {
		to, err := parseDay(raw, loc)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD or RFC3339")
		}
		end := startOfDay(to).AddDate(0, 0, 1)
		filter.DateTo = &end
	}
	for _, bound := range []*float64{query.MinScore, query.MaxScore} {
		if bound != nil && (*bound < 0 || *bound > 100) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "score bounds must be between 0 and 100")
		}
	}
	if query.MinScore != nil && query.MaxScore != nil && *query.MinScore > *query.MaxScore {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "min_score cannot exceed max_score")
	}

	archives, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list archives")
	}
	if archives == nil {
		archives = []models.AuditArchive{}
	}
	return archives, newPagination(filter.PageRequest, total), nil
}

// Get returns one archive of the tenant.
func (s *AuditArchiveService) Get(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.AuditArchive, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	archive, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archive not found")
		}
		return nil, internalError(err, "failed to load archive")
	}
	return archive, nil
}

// Stats aggregates the tenant archives, served from cache when possible. The flag reports a cache hit.
func (s *AuditArchiveService) Stats(ctx context.Context, actor *models.AuthorizationContext) (*models.ArchiveStats, bool, error) {
	if err := requireActor(actor); err != nil {
		return nil, false, err
	}
	key := statsCacheKey(actor.TenantID)
	var cached models.ArchiveStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}
	stats, err := s.repo.Stats(ctx, actor.TenantID)
	if err != nil {
		return nil, false, internalError(err, "failed to aggregate archives")
	}
	if stats.Categories == nil {
		stats.Categories = []models.ArchiveCategoryCount{}
	}
	s.cache.Set(ctx, key, stats, s.cfg.StatsCacheTTL)
	return stats, false, nil
}

// Export renders an archive as a PDF report or a CSV of its responses.
func (s *AuditArchiveService) Export(ctx context.Context, id, format string, actor *models.AuthorizationContext) (*dto.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != ExportFormatPDF && format != ExportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
	archive, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	content, filename, contentType, err := s.exporter.Render(archive, format)
	if err != nil {
		return nil, internalError(err, "failed to render archive")
	}
	return &dto.ExportFile{Filename: filename, ContentType: contentType, Content: content}, nil
}

// snapshot denormalizes the execution, its answers, findings and their corrective actions.
func (s *AuditArchiveService) snapshot(ctx context.Context, exec *models.AuditExecution, actor *models.AuthorizationContext) (*models.AuditArchive, error) {
	tpl, err := s.templates.GetByID(ctx, exec.TemplateID)
	if err != nil {
		return nil, internalError(err, "failed to load audit template")
	}
	responses, err := s.findings.ListResponses(ctx, exec.ID)
	if err != nil {
		return nil, internalError(err, "failed to load responses")
	}
	findings, err := s.findings.ListByExecution(ctx, exec.ID)
	if err != nil {
		return nil, internalError(err, "failed to load non-conformities")
	}
	ncIDs := make([]string, 0, len(findings))
	for _, nc := range findings {
		ncIDs = append(ncIDs, nc.ID)
	}
	actions, err := s.actions.ListByNonConformities(ctx, actor.TenantID, ncIDs)
	if err != nil {
		return nil, internalError(err, "failed to load corrective actions")
	}

	now := s.cfg.Clock.Now()
	archive := &models.AuditArchive{
		TenantID:              exec.TenantID,
		ExecutionID:           exec.ID,
		TemplateID:            exec.TemplateID,
		TemplateName:          exec.TemplateName,
		TemplateCategory:      models.TemplateCategory(exec.Category),
		RestaurantName:        exec.RestaurantName,
		InspectorName:         exec.InspectorName,
		ScheduledDate:         exec.ScheduledDate,
		CompletedDate:         now.UTC(),
		FinalStatus:           exec.Status,
		ResponsesData:         archivedResponses(tpl.Items, responses),
		NonConformitiesData:   archivedFindings(findings),
		CorrectiveActionsData: archivedActions(actions),
		ArchivedBy:            actor.UserID,
		ArchivedAt:            now.UTC(),
	}
	if archive.TemplateName == "" {
		archive.TemplateName = tpl.Name
		archive.TemplateCategory = tpl.Category
	}
	if exec.CompletedAt != nil {
		archive.CompletedDate = *exec.CompletedAt
	}

	total, maxScore, _ := scoreExecution(tpl.Items, responses)
	if exec.TotalScore != nil && exec.MaxScore != nil {
		total, maxScore = *exec.TotalScore, *exec.MaxScore
	}
	archive.TotalScore = total
	archive.MaxPossibleScore = maxScore
	archive.ScorePercentage = scorePercentage(total, maxScore)
	return archive, nil
}

func (s *AuditArchiveService) missingExecution(ctx context.Context, tenantID, executionID string) error {
	exists, err := s.repo.ExistsForExecution(ctx, tenantID, executionID)
	if err != nil {
		return internalError(err, "failed to check archive")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "audit already archived")
	}
	return appErrors.Clone(appErrors.ErrNotFound, "audit execution not found")
}

func statsCacheKey(tenantID string) string {
	return cache.Key("archives", "stats", tenantID)
}

// scorePercentage is total/max as a percentage rounded to two decimals; 0 when nothing is scorable.
func scorePercentage(total, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(total/maxScore*10000) / 100
}

func archivedResponses(items []models.AuditItem, responses []models.AuditResponse) models.JSONList[models.ArchivedResponse] {
	byItem := make(map[string]models.AuditResponse, len(responses))
	for _, resp := range responses {
		byItem[resp.ItemID] = resp
	}
	ordered := make([]models.AuditItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	out := make(models.JSONList[models.ArchivedResponse], 0, len(ordered))
	for _, item := range ordered {
		entry := models.ArchivedResponse{
			ItemID:   item.ID,
			Order:    item.Order,
			Question: item.Question,
			Type:     item.Type,
			MaxScore: item.MaxScore,
			Critical: item.IsCritical,
		}
		if resp, ok := byItem[item.ID]; ok {
			entry.Value = resp.Value
			entry.Score = resp.Score
			entry.Notes = resp.Notes
			entry.Answerer = resp.RecordedBy
			entry.Recorded = resp.UpdatedAt.UTC().Format(time.RFC3339)
			entry.Responded = true
		}
		out = append(out, entry)
	}
	return out
}

func archivedFindings(findings []models.NonConformity) models.JSONList[models.ArchivedNonConformity] {
	out := make(models.JSONList[models.ArchivedNonConformity], 0, len(findings))
	for _, nc := range findings {
		out = append(out, models.ArchivedNonConformity{
			ID:             nc.ID,
			ItemID:         nc.ItemID,
			Severity:       nc.Severity,
			Description:    nc.Description,
			Evidence:       nc.Evidence,
			Status:         nc.Status,
			IdentifiedDate: nc.IdentifiedDate,
		})
	}
	return out
}

func archivedActions(actions []models.CorrectiveAction) models.JSONList[models.ArchivedCorrectiveAction] {
	out := make(models.JSONList[models.ArchivedCorrectiveAction], 0, len(actions))
	for _, action := range actions {
		entry := models.ArchivedCorrectiveAction{
			ID:                action.ID,
			ActionDescription: action.ActionDescription,
			AssignedTo:        action.AssignedTo,
			AssigneeName:      action.AssigneeName,
			DueDate:           action.DueDate,
			Status:            action.Status,
			CompletionDate:    action.CompletionDate,
			CompletionNotes:   action.CompletionNotes,
			VerificationNotes: action.VerificationNotes,
		}
		if action.NonConformityID != nil {
			entry.NonConformityID = *action.NonConformityID
		}
		out = append(out, entry)
	}
	return out
}

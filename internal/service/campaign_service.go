package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/export"
)

type campaignStore interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	Update(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context) ([]models.Campaign, error)
	ListActive(ctx context.Context) ([]models.Campaign, error)
	NameTaken(ctx context.Context, nom, excludeID string) (bool, error)
	CountDossiers(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type campaignDossierLister interface {
	List(ctx context.Context, filter models.DossierFilter) ([]models.Dossier, error)
}

// CampaignService manages admission windows.
type CampaignService struct {
	repo      campaignStore
	dossiers  campaignDossierLister
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

const activeCampaignsKey = "campagnes:active"

// CampaignServiceOption customises CampaignService.
type CampaignServiceOption func(*CampaignService)

// WithCampaignCache caches the active campaign list.
func WithCampaignCache(cache *CacheService) CampaignServiceOption {
	return func(s *CampaignService) {
		s.cache = cache
	}
}

// WithCampaignClock overrides the clock used to derive statuses.
func WithCampaignClock(now func() time.Time) CampaignServiceOption {
	return func(s *CampaignService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCampaignService constructs the service.
func NewCampaignService(repo campaignStore, dossiers campaignDossierLister, validate *validator.Validate, logger *zap.Logger, opts ...CampaignServiceOption) *CampaignService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &CampaignService{
		repo:      repo,
		dossiers:  dossiers,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(""),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create stores a new campaign.
func (s *CampaignService) Create(ctx context.Context, req dto.UpsertCampaignRequest) (*models.CampaignView, error) {
	campaign := &models.Campaign{}
	if err := s.apply(ctx, campaign, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, campaign); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "campaign name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create campaign")
	}
	s.cache.Invalidate(ctx, activeCampaignsKey)
	s.logger.Info("campaign created", zap.String("campaign_id", campaign.ID), zap.String("nom", campaign.Nom))
	return s.view(campaign), nil
}

// Update replaces a campaign's attributes.
func (s *CampaignService) Update(ctx context.Context, id string, req dto.UpsertCampaignRequest) (*models.CampaignView, error) {
	campaign, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, campaign, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, campaign); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "campaign name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update campaign")
	}
	s.cache.Invalidate(ctx, activeCampaignsKey)
	return s.view(campaign), nil
}

func (s *CampaignService) apply(ctx context.Context, campaign *models.Campaign, req dto.UpsertCampaignRequest) error {
	req.Nom = strings.TrimSpace(req.Nom)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid campaign payload")
	}
	if !req.DateFermeture.After(req.DateOuverture) {
		return appErrors.Clone(appErrors.ErrInvalidArgument, "dateFermeture must be after dateOuverture")
	}
	taken, err := s.repo.NameTaken(ctx, req.Nom, campaign.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check campaign name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "campaign name already used")
	}
	campaign.Nom = req.Nom
	campaign.DateOuverture = req.DateOuverture.UTC()
	campaign.DateFermeture = req.DateFermeture.UTC()
	campaign.Active = true
	if req.Active != nil {
		campaign.Active = *req.Active
	}
	return nil
}

// Get returns one campaign with its derived status.
func (s *CampaignService) Get(ctx context.Context, id string) (*models.CampaignView, error) {
	campaign, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(campaign), nil
}

// List returns every campaign.
func (s *CampaignService) List(ctx context.Context) ([]models.CampaignView, error) {
	campaigns, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list campaigns")
	}
	return s.views(campaigns), nil
}

// ListActive returns campaigns flagged active. Statuses are derived after the cache lookup.
func (s *CampaignService) ListActive(ctx context.Context) ([]models.CampaignView, error) {
	var campaigns []models.Campaign
	if !s.cache.Get(ctx, activeCampaignsKey, &campaigns) {
		var err error
		campaigns, err = s.repo.ListActive(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active campaigns")
		}
		s.cache.Set(ctx, activeCampaignsKey, campaigns)
	}
	return s.views(campaigns), nil
}

// Current returns the first campaign open now.
func (s *CampaignService) Current(ctx context.Context) (*models.CampaignView, error) {
	campaigns, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		if campaigns[i].Status == models.CampaignStatusInProgress {
			return &campaigns[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no campaign in progress")
}

// Status derives the campaign status now.
func (s *CampaignService) Status(ctx context.Context, id string) (models.CampaignStatus, error) {
	campaign, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return campaign.StatusAt(s.now()), nil
}

// Delete removes a campaign that owns no dossier.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete campaign")
	}
	if !deleted {
		conflict := appErrors.Clone(appErrors.ErrConflict, "campaign still owns dossiers")
		count, err := s.repo.CountDossiers(ctx, id)
		if err != nil {
			s.logger.Warn("failed to count campaign dossiers", zap.String("campaign_id", id), zap.Error(err))
			return conflict
		}
		return appErrors.WithDetails(conflict, map[string]interface{}{"dossiers": count})
	}
	s.cache.Invalidate(ctx, activeCampaignsKey)
	s.logger.Info("campaign deleted", zap.String("campaign_id", id))
	return nil
}

// ExportDossiers renders the campaign's dossiers as a CSV sheet or a PDF table.
func (s *CampaignService) ExportDossiers(ctx context.Context, id string, format models.ExportFormat) (string, []byte, error) {
	if format == "" {
		format = models.ExportCSV
	}
	if format != models.ExportCSV && format != models.ExportPDF {
		return "", nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unsupported export format %q", format))
	}
	campaign, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	dossiers, err := s.dossiers.List(ctx, models.DossierFilter{CampaignID: id, Limit: 500})
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dossiers")
	}
	dataset := export.Dataset{
		Headers: []string{"id", "doctorant", "directeur", "status", "date_soumission", "reinscription", "derogation"},
	}
	for _, d := range dossiers {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":              d.ID,
			"doctorant":       d.DoctorantID,
			"directeur":       d.DirecteurID,
			"status":          string(d.Status),
			"date_soumission": d.DateSoumission.UTC().Format(time.RFC3339),
			"reinscription":   strconv.FormatBool(d.Reinscription),
			"derogation":      strconv.FormatBool(d.Derogation),
		})
	}
	var data []byte
	if format == models.ExportPDF {
		data, err = s.pdf.Render(dataset, "Dossiers - "+campaign.Nom)
	} else {
		data, err = s.csv.Render(dataset)
	}
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return fmt.Sprintf("dossiers_%s.%s", slug(campaign.Nom), format), data, nil
}

func (s *CampaignService) load(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "campaign not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load campaign")
	}
	return campaign, nil
}

func (s *CampaignService) view(c *models.Campaign) *models.CampaignView {
	return &models.CampaignView{Campaign: *c, Status: c.StatusAt(s.now())}
}

func (s *CampaignService) views(campaigns []models.Campaign) []models.CampaignView {
	out := make([]models.CampaignView, len(campaigns))
	for i := range campaigns {
		out[i] = *s.view(&campaigns[i])
	}
	return out
}

func slug(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

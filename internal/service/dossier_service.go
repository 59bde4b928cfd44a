package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/internal/workflow"
	"github.com/noah-isme/doctorat-api/pkg/database"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

type campaignReader interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
}

type dossierStore interface {
	Create(ctx context.Context, dossier *models.Dossier) error
	GetByID(ctx context.Context, id string) (*models.Dossier, error)
	ExistsForCampaign(ctx context.Context, doctorantID, campaignID string) (bool, error)
	List(ctx context.Context, filter models.DossierFilter) ([]models.Dossier, error)
	Latest(ctx context.Context, doctorantID string) (*models.Dossier, error)
	InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error)
	Transition(ctx context.Context, t repository.StatusTransition) error
	Delete(ctx context.Context, id string) error
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type userDirectory interface {
	ResolveUser(ctx context.Context, id string) (*models.User, error)
	ValidateRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

type dossierEvents interface {
	DossierChanged(ctx context.Context, d *models.Dossier, old models.DossierStatus, eventType models.DossierEventType, comment string) error
}

// DossierService runs the enrollment approval pipeline.
type DossierService struct {
	campaigns campaignReader
	dossiers  dossierStore
	documents *DocumentService
	users     userDirectory
	events    dossierEvents
	tx        txRunner
	policy    workflow.DurationPolicy
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// DossierServiceOption configures the service.
type DossierServiceOption func(*DossierService)

// WithDurationPolicy overrides the default duration thresholds.
func WithDurationPolicy(policy workflow.DurationPolicy) DossierServiceOption {
	return func(s *DossierService) {
		s.policy = policy
	}
}

// WithDossierMetrics records committed transitions.
func WithDossierMetrics(metrics *MetricsService) DossierServiceOption {
	return func(s *DossierService) {
		s.metrics = metrics
	}
}

// WithDossierClock overrides the time source.
func WithDossierClock(now func() time.Time) DossierServiceOption {
	return func(s *DossierService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDossierService constructs the service with defaults.
func NewDossierService(campaigns campaignReader, dossiers dossierStore, documents *DocumentService, users userDirectory,
	events dossierEvents, tx txRunner, validate *validator.Validate, logger *zap.Logger, opts ...DossierServiceOption) *DossierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &DossierService{
		campaigns: campaigns,
		dossiers:  dossiers,
		documents: documents,
		users:     users,
		events:    events,
		tx:        tx,
		policy:    workflow.DefaultDurationPolicy,
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

// Submit creates a dossier in EN_ATTENTE_DIRECTEUR for the doctorant.
func (s *DossierService) Submit(ctx context.Context, doctorantID string, req dto.SubmitDossierRequest, uploads []DocumentUpload) (*models.Dossier, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dossier payload")
	}
	now := s.now().UTC()

	campaign, err := s.campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "campaign not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load campaign")
	}
	if !campaign.IsOpenAt(now) {
		return nil, appErrors.WithDetails(appErrors.ErrCampaignNotActive, map[string]interface{}{"status": campaign.StatusAt(now)})
	}

	exists, err := s.dossiers.ExistsForCampaign(ctx, doctorantID, campaign.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing dossier")
	}
	if exists {
		return nil, appErrors.ErrDuplicateSubmission
	}

	dossier := &models.Dossier{
		CampaignID:              campaign.ID,
		DoctorantID:             doctorantID,
		DirecteurID:             strings.TrimSpace(req.DirecteurID),
		Sujet:                   strings.TrimSpace(req.Sujet),
		Collaboration:           optionalString(req.Collaboration),
		Status:                  models.DossierEnAttenteDirecteur,
		DateSoumission:          now,
		DateInscriptionInitiale: now,
	}

	var previousDocs []models.Document
	if req.Reinscription {
		previous, err := s.loadPrevious(ctx, doctorantID, req.PreviousDossierID)
		if err != nil {
			return nil, err
		}
		if _, err := s.policy.CheckReenrollment(previous.DateInscriptionInitiale, previous.Derogation, now); err != nil {
			return nil, err
		}
		dossier.Reinscription = true
		dossier.PreviousDossierID = &previous.ID
		dossier.DateInscriptionInitiale = previous.DateInscriptionInitiale
		dossier.Derogation = previous.Derogation
		if dossier.DirecteurID == "" {
			dossier.DirecteurID = previous.DirecteurID
		}
		if dossier.Sujet == "" {
			dossier.Sujet = previous.Sujet
		}
		if dossier.Collaboration == nil {
			dossier.Collaboration = previous.Collaboration
		}
		if previousDocs, err = s.documents.ListForDossier(ctx, previous.ID); err != nil {
			return nil, err
		}
	}

	if dossier.Sujet == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "sujet is required")
	}
	if err := s.checkDirecteur(ctx, dossier.DirecteurID); err != nil {
		return nil, err
	}

	stored, err := s.documents.StoreAll(doctorantID, uploads)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.dossiers.Create(ctx, dossier); err != nil {
			if database.IsUniqueViolation(err, repository.DossierUniqueConstraint) {
				return appErrors.ErrDuplicateSubmission
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dossier")
		}
		docs, err := s.documents.AttachToDossier(ctx, dossier.ID, stored, previousDocs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record documents")
		}
		dossier.Documents = docs
		if err := s.events.DossierChanged(ctx, dossier, "", models.EventSubmission, ""); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission event")
		}
		return nil
	})
	if err != nil {
		s.documents.Discard(stored...)
		return nil, err
	}

	s.metrics.RecordTransition(models.AggregateDossier, "", string(dossier.Status))
	s.logger.Info("dossier submitted",
		zap.String("dossier_id", dossier.ID),
		zap.String("doctorant_id", doctorantID),
		zap.String("campaign_id", campaign.ID),
		zap.Bool("reinscription", dossier.Reinscription),
	)
	return dossier, nil
}

func (s *DossierService) loadPrevious(ctx context.Context, doctorantID, previousID string) (*models.Dossier, error) {
	if strings.TrimSpace(previousID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "previousDossierId is required for a re-enrollment")
	}
	previous, err := s.dossiers.GetByID(ctx, previousID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "previous dossier not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous dossier")
	}
	if previous.DoctorantID != doctorantID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "previous dossier belongs to another doctorant")
	}
	return previous, nil
}

func (s *DossierService) checkDirecteur(ctx context.Context, directeurID string) error {
	if directeurID == "" {
		return appErrors.Clone(appErrors.ErrInvalidDirector, "directeurId is required")
	}
	if _, err := s.users.ValidateRole(ctx, directeurID, models.RoleDirecteur); err != nil {
		if errors.Is(err, client.ErrUserNotFound) || errors.Is(err, client.ErrRoleMismatch) {
			return appErrors.WithDetails(appErrors.ErrInvalidDirector, map[string]interface{}{"directeurId": directeurID})
		}
		return err
	}
	return nil
}

// Get returns a dossier with its documents if the actor may see it.
func (s *DossierService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Dossier, error) {
	dossier, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(dossier, actor) {
		return nil, appErrors.ErrForbidden
	}
	docs, err := s.documents.ListForDossier(ctx, dossier.ID)
	if err != nil {
		return nil, err
	}
	dossier.Documents = docs
	for _, action := range workflow.Dossier.Actions(dossier.Status) {
		dossier.Actions = append(dossier.Actions, string(action))
	}
	return dossier, nil
}

// ListByDoctorant returns the doctorant's dossiers, most recent first.
func (s *DossierService) ListByDoctorant(ctx context.Context, doctorantID string) ([]models.Dossier, error) {
	return s.list(ctx, models.DossierFilter{DoctorantID: doctorantID})
}

// PendingForDirecteur returns dossiers awaiting the director's decision.
func (s *DossierService) PendingForDirecteur(ctx context.Context, directeurID string) ([]models.Dossier, error) {
	return s.list(ctx, models.DossierFilter{DirecteurID: directeurID, Status: []models.DossierStatus{models.DossierEnAttenteDirecteur}})
}

// PendingForAdmin returns dossiers awaiting the administration.
func (s *DossierService) PendingForAdmin(ctx context.Context) ([]models.Dossier, error) {
	return s.list(ctx, models.DossierFilter{Status: []models.DossierStatus{models.DossierEnAttenteAdmin}})
}

// ListByCampaign returns every dossier of a campaign.
func (s *DossierService) ListByCampaign(ctx context.Context, campaignID string) ([]models.Dossier, error) {
	return s.list(ctx, models.DossierFilter{CampaignID: campaignID, Limit: 500})
}

func (s *DossierService) list(ctx context.Context, filter models.DossierFilter) ([]models.Dossier, error) {
	dossiers, err := s.dossiers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dossiers")
	}
	return dossiers, nil
}

// PreviousDossier returns the doctorant's latest dossier.
func (s *DossierService) PreviousDossier(ctx context.Context, doctorantID string) (*models.Dossier, error) {
	dossier, err := s.dossiers.Latest(ctx, doctorantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no previous dossier")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous dossier")
	}
	return dossier, nil
}

// InitialInscription returns the first inscription of a doctorant or nil.
func (s *DossierService) InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error) {
	initial, err := s.dossiers.InitialInscription(ctx, doctorantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load initial inscription")
	}
	return initial, nil
}

// ReenrollmentStatus reports whether the doctorant may re-enroll now.
func (s *DossierService) ReenrollmentStatus(ctx context.Context, doctorantID string) (*models.ReenrollmentStatus, error) {
	initial, err := s.InitialInscription(ctx, doctorantID)
	if err != nil {
		return nil, err
	}
	status := s.policy.ReenrollmentStatus(initial, s.now())
	return &status, nil
}

// Delete removes a dossier and releases stored files no other dossier shares.
func (s *DossierService) Delete(ctx context.Context, id string) error {
	dossier, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	docs, err := s.documents.ListForDossier(ctx, dossier.ID)
	if err != nil {
		return err
	}
	if err := s.dossiers.Delete(ctx, dossier.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "dossier not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete dossier")
	}
	s.documents.ReleaseDossierFiles(ctx, dossier.ID, docs)
	s.logger.Info("dossier deleted", zap.String("dossier_id", dossier.ID), zap.Int("documents", len(docs)))
	return nil
}

// DocumentURL signs a download link for a document the actor may see.
func (s *DossierService) DocumentURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, time.Time, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return "", time.Time{}, err
	}
	dossier, err := s.load(ctx, doc.DossierID)
	if err != nil {
		return "", time.Time{}, err
	}
	if !canView(dossier, actor) {
		return "", time.Time{}, appErrors.ErrForbidden
	}
	return s.documents.DownloadURL(doc)
}

func (s *DossierService) load(ctx context.Context, id string) (*models.Dossier, error) {
	dossier, err := s.dossiers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dossier not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dossier")
	}
	return dossier, nil
}

func canView(d *models.Dossier, actor *models.JWTClaims) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.UserID == d.DoctorantID || actor.UserID == d.DirecteurID
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

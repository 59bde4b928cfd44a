package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/internal/workflow"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

type demandeStore interface {
	Create(ctx context.Context, demande *models.Demande) error
	GetByID(ctx context.Context, id string) (*models.Demande, error)
	List(ctx context.Context, filter models.DemandeFilter) ([]models.Demande, error)
	Transition(ctx context.Context, t repository.StatusTransition) error
	CreatePrerequis(ctx context.Context, p *models.Prerequis) error
	GetPrerequis(ctx context.Context, demandeID string) (*models.Prerequis, error)
	CreateJury(ctx context.Context, jury *models.Jury) error
	GetJury(ctx context.Context, demandeID string) (*models.Jury, error)
	LockJury(ctx context.Context, demandeID string) (bool, error)
	MarkRapportsFavorables(ctx context.Context, demandeID string) (bool, error)
	CreateRapport(ctx context.Context, rapport *models.Rapport) error
	ListRapports(ctx context.Context, demandeID string) ([]models.Rapport, error)
	TallyRapports(ctx context.Context, demandeID string) (models.RapportTally, error)
	CreateDocument(ctx context.Context, doc *models.DocumentSoutenance) error
	ListDocuments(ctx context.Context, demandeID string) ([]models.DocumentSoutenance, error)
}

type inscriptionLookup interface {
	InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error)
}

type demandeEvents interface {
	DemandeEvent(ctx context.Context, topic, demandeID string) error
}

// DemandeService runs the defense authorization pipeline.
type DemandeService struct {
	repo        demandeStore
	inscription inscriptionLookup
	documents   *DocumentService
	events      demandeEvents
	tx          txRunner
	duration    workflow.DurationPolicy
	prerequis   workflow.PrerequisPolicy
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// DemandeServiceOption configures the service.
type DemandeServiceOption func(*DemandeService)

// WithDemandeDurationPolicy overrides the duration thresholds.
func WithDemandeDurationPolicy(policy workflow.DurationPolicy) DemandeServiceOption {
	return func(s *DemandeService) { s.duration = policy }
}

// WithPrerequisPolicy overrides the prerequisite minimums.
func WithPrerequisPolicy(policy workflow.PrerequisPolicy) DemandeServiceOption {
	return func(s *DemandeService) { s.prerequis = policy }
}

// WithDemandeMetrics records committed transitions.
func WithDemandeMetrics(metrics *MetricsService) DemandeServiceOption {
	return func(s *DemandeService) { s.metrics = metrics }
}

// WithDemandeClock overrides the time source.
func WithDemandeClock(now func() time.Time) DemandeServiceOption {
	return func(s *DemandeService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDemandeService constructs the service with defaults.
func NewDemandeService(repo demandeStore, inscription inscriptionLookup, documents *DocumentService, events demandeEvents,
	tx txRunner, validate *validator.Validate, logger *zap.Logger, opts ...DemandeServiceOption) *DemandeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &DemandeService{
		repo:        repo,
		inscription: inscription,
		documents:   documents,
		events:      events,
		tx:          tx,
		duration:    workflow.DefaultDurationPolicy,
		prerequis:   workflow.DefaultPrerequisPolicy,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit checks duration and prerequisites, then records the demande in EN_ATTENTE_PREREQUIS.
// Nothing is persisted when a check fails.
func (s *DemandeService) Submit(ctx context.Context, doctorantID string, req dto.SubmitDemandeRequest, manuscript *DocumentUpload, uploads []DocumentUpload) (*models.Demande, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid demande payload")
	}
	if manuscript == nil || manuscript.Content == nil || manuscript.Size == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "manuscript is required")
	}
	now := s.now().UTC()

	initial, err := s.inscription.InitialInscription(ctx, doctorantID)
	if err != nil {
		return nil, err
	}
	// Only a derogation granted on the inscription counts; the doctorant cannot claim one.
	var derogation bool
	var assessment *workflow.Assessment
	if initial != nil {
		derogation = initial.Derogation
		a, err := s.duration.CheckDefense(initial.Date, derogation, now)
		if err != nil {
			return nil, err
		}
		assessment = &a
	} else {
		s.logger.Warn("no initial inscription, duration check skipped", zap.String("doctorant_id", doctorantID))
	}

	prerequis := &models.Prerequis{
		NbArticles:      req.NbArticles,
		NbConferences:   req.NbConferences,
		HeuresFormation: req.HeuresFormation,
	}
	if err := s.prerequis.Check(*prerequis); err != nil {
		return nil, err
	}
	prerequis.Valide = true

	manuscriptUpload := *manuscript
	manuscriptUpload.Type = models.DocumentManuscrit
	stored, err := s.documents.StoreAll(doctorantID, append([]DocumentUpload{manuscriptUpload}, uploads...))
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "manuscript is required")
	}

	demande := &models.Demande{
		DoctorantID:     doctorantID,
		ManuscritPath:   &stored[0].File.Chemin,
		Status:          models.DemandeEnAttentePrerequis,
		DateSoumission:  now,
		DerogationDuree: derogation,
	}
	alert := assessment != nil && assessment.Alert

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, demande); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create demande")
		}
		prerequis.DemandeID = demande.ID
		if err := s.repo.CreatePrerequis(ctx, prerequis); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record prerequisites")
		}
		demande.Prerequis = prerequis
		for _, upload := range stored {
			doc := &models.DocumentSoutenance{
				DemandeID:   demande.ID,
				NomOriginal: upload.File.NomOriginal,
				Chemin:      upload.File.Chemin,
				Type:        upload.Type,
				MimeType:    upload.File.MimeType,
				Taille:      upload.File.Taille,
				DateUpload:  now,
			}
			if err := s.repo.CreateDocument(ctx, doc); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record documents")
			}
			demande.Documents = append(demande.Documents, *doc)
		}
		if alert {
			if err := s.events.DemandeEvent(ctx, models.TopicDureeAlerte, demande.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record duration alert")
			}
		}
		if err := s.events.DemandeEvent(ctx, models.TopicDemandeSubmitted, demande.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission event")
		}
		return nil
	})
	if err != nil {
		s.documents.Discard(stored...)
		return nil, err
	}

	s.metrics.RecordTransition(models.AggregateDemande, "", string(demande.Status))
	fields := []zap.Field{
		zap.String("demande_id", demande.ID),
		zap.String("doctorant_id", doctorantID),
		zap.Bool("derogation", derogation),
		zap.Bool("duration_alert", alert),
	}
	if assessment != nil {
		fields = append(fields, zap.Int("elapsed_years", assessment.ElapsedYears))
	}
	s.logger.Info("demande submitted", fields...)
	return demande, nil
}

// ValiderPrerequis moves a demande to EN_ATTENTE_JURY.
func (s *DemandeService) ValiderPrerequis(ctx context.Context, id string) (*models.Demande, error) {
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, demande, workflow.ActionValiderPrerequis, nil, ""); err != nil {
		return nil, err
	}
	return demande, nil
}

// ProposeJury attaches a committee and moves the demande to EN_ATTENTE_RAPPORTS.
func (s *DemandeService) ProposeJury(ctx context.Context, id string, req dto.ProposeJuryRequest) (*models.Demande, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid jury payload")
	}
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetJury(ctx, demande.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "a jury is already proposed for this demande")
	}

	jury := &models.Jury{DemandeID: demande.ID}
	for _, nom := range req.Rapporteurs {
		jury.Membres = append(jury.Membres, models.MembreJury{Nom: strings.TrimSpace(nom), Type: models.MembreRapporteur})
	}
	for _, nom := range req.Examinateurs {
		jury.Membres = append(jury.Membres, models.MembreJury{Nom: strings.TrimSpace(nom), Type: models.MembreExaminateur})
	}

	err = s.transitionWith(ctx, demande, workflow.ActionProposerJury, nil, models.TopicJuryProposed, func(ctx context.Context) error {
		if err := s.repo.CreateJury(ctx, jury); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record jury")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	demande.Jury = jury
	return demande, nil
}

// UploadRapport files one rapporteur report. Once every expected rapporteur has reported and all
// reports are favorable, the jury is marked favorable and the demande becomes AUTORISEE.
func (s *DemandeService) UploadRapport(ctx context.Context, id string, upload DocumentUpload, favorable bool) (*models.Rapport, *models.Demande, error) {
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	jury, err := s.repo.GetJury(ctx, demande.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury")
	}
	if jury == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "no jury proposed for this demande")
	}

	upload.Type = models.DocumentRapport
	file, err := s.documents.Store(demande.DoctorantID, upload)
	if err != nil {
		return nil, nil, err
	}
	if file == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidArgument, "report file is required")
	}

	rapport := &models.Rapport{
		DemandeID: demande.ID,
		Chemin:    file.Chemin,
		Favorable: favorable,
		DateDepot: s.now().UTC(),
	}
	var authorized bool
	from := demande.Status
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		favorables, err := s.repo.LockJury(ctx, demande.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock jury")
		}
		if err := s.repo.CreateRapport(ctx, rapport); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record report")
		}
		tally, err := s.repo.TallyRapports(ctx, demande.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reports")
		}
		if !reportsComplete(jury, tally) || favorables || demande.Status != models.DemandeEnAttenteRapports {
			return nil
		}
		marked, err := s.repo.MarkRapportsFavorables(ctx, demande.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update jury")
		}
		if !marked {
			return nil
		}
		to, err := workflow.Demande.Fire(workflow.ActionRapportsOK, demande.Status)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, demande, to, nil); err != nil {
			return err
		}
		if err := s.events.DemandeEvent(ctx, models.TopicRapportOK, demande.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record report event")
		}
		authorized = true
		return nil
	})
	if err != nil {
		demande.Status = from
		s.documents.deleteFile(file.Chemin)
		return nil, nil, err
	}
	if authorized {
		jury.RapportsFavorables = true
		s.metrics.RecordTransition(models.AggregateDemande, string(from), string(demande.Status))
	}
	demande.Jury = jury
	s.logger.Info("rapport uploaded",
		zap.String("demande_id", demande.ID),
		zap.Bool("favorable", favorable),
		zap.Bool("authorized", authorized),
	)
	return rapport, demande, nil
}

func reportsComplete(jury *models.Jury, tally models.RapportTally) bool {
	return tally.Total > 0 && tally.Total >= jury.RapporteurCount() && tally.Favorables == tally.Total
}

// Autoriser asserts AUTORISEE once the jury reports are favorable.
func (s *DemandeService) Autoriser(ctx context.Context, id string) (*models.Demande, error) {
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	jury, err := s.repo.GetJury(ctx, demande.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury")
	}
	if jury == nil || !jury.RapportsFavorables {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "jury reports are not favorable")
	}
	if err := s.transition(ctx, demande, workflow.ActionAutoriser, nil, models.TopicSoutenanceAutorisee); err != nil {
		return nil, err
	}
	demande.Jury = jury
	return demande, nil
}

// Planifier schedules an authorized defense.
func (s *DemandeService) Planifier(ctx context.Context, id string, req dto.PlanifierRequest) (*models.Demande, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", req.Heure); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "heure must be HH:MM")
	}
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	lieu := strings.TrimSpace(req.Lieu)
	fields := map[string]interface{}{
		"date_soutenance":  date,
		"heure_soutenance": req.Heure,
		"lieu_soutenance":  lieu,
	}
	if err := s.transition(ctx, demande, workflow.ActionPlanifier, fields, models.TopicSoutenancePlanifiee); err != nil {
		return nil, err
	}
	demande.DateSoutenance = &date
	demande.HeureSoutenance = &req.Heure
	demande.LieuSoutenance = &lieu
	return demande, nil
}

// Get returns a demande with its children if the actor may see it.
func (s *DemandeService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Demande, error) {
	demande, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || (!actor.HasRole(models.RoleAdmin, models.RoleDirecteur) && actor.UserID != demande.DoctorantID) {
		return nil, appErrors.ErrForbidden
	}
	if demande.Prerequis, err = s.repo.GetPrerequis(ctx, demande.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if demande.Jury, err = s.repo.GetJury(ctx, demande.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury")
	}
	if demande.Documents, err = s.repo.ListDocuments(ctx, demande.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	if demande.Rapports, err = s.repo.ListRapports(ctx, demande.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	demande.Actions = demandeActions(demande)
	return demande, nil
}

// demandeActions lists the calls a client can make next. The report transition is automatic and
// autoriser needs favorable reports, so both are filtered against the loaded jury.
func demandeActions(demande *models.Demande) []string {
	var out []string
	for _, action := range workflow.Demande.Actions(demande.Status) {
		switch action {
		case workflow.ActionRapportsOK:
			continue
		case workflow.ActionProposerJury:
			if demande.Jury != nil {
				continue
			}
		case workflow.ActionAutoriser:
			if demande.Jury == nil || !demande.Jury.RapportsFavorables {
				continue
			}
		}
		out = append(out, string(action))
	}
	return out
}

// ListByDoctorant returns the doctorant's demandes, most recent first.
func (s *DemandeService) ListByDoctorant(ctx context.Context, doctorantID string) ([]models.Demande, error) {
	return s.list(ctx, models.DemandeFilter{DoctorantID: doctorantID})
}

// ListByStatus returns demandes in any of the given statuses, all when none is given.
func (s *DemandeService) ListByStatus(ctx context.Context, query dto.DemandeQuery) ([]models.Demande, error) {
	return s.list(ctx, models.DemandeFilter{Status: query.Status, Limit: 500})
}

func (s *DemandeService) list(ctx context.Context, filter models.DemandeFilter) ([]models.Demande, error) {
	demandes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list demandes")
	}
	return demandes, nil
}

func (s *DemandeService) load(ctx context.Context, id string) (*models.Demande, error) {
	demande, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "demande not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load demande")
	}
	return demande, nil
}

func (s *DemandeService) transition(ctx context.Context, demande *models.Demande, action workflow.Action, fields map[string]interface{}, topic string) error {
	return s.transitionWith(ctx, demande, action, fields, topic, nil)
}

// transitionWith fires action, runs before inside the transaction, persists the new status with a
// compare-and-set and records topic when non-empty.
func (s *DemandeService) transitionWith(ctx context.Context, demande *models.Demande, action workflow.Action, fields map[string]interface{}, topic string, before func(ctx context.Context) error) error {
	from := demande.Status
	to, err := workflow.Demande.Fire(action, from)
	if err != nil {
		return err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if before != nil {
			if err := before(ctx); err != nil {
				return err
			}
		}
		if err := s.persist(ctx, demande, to, fields); err != nil {
			return err
		}
		if topic == "" {
			return nil
		}
		if err := s.events.DemandeEvent(ctx, topic, demande.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record demande event")
		}
		return nil
	})
	if err != nil {
		demande.Status = from
		return err
	}
	s.metrics.RecordTransition(models.AggregateDemande, string(from), string(to))
	s.logger.Info("demande transition",
		zap.String("demande_id", demande.ID),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *DemandeService) persist(ctx context.Context, demande *models.Demande, to models.DemandeStatus, fields map[string]interface{}) error {
	err := s.repo.Transition(ctx, repository.StatusTransition{
		ID:     demande.ID,
		From:   string(demande.Status),
		To:     string(to),
		Fields: fields,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "demande status changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update demande")
	}
	demande.Status = to
	return nil
}

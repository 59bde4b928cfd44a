package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/export"
	"github.com/noah-isme/doctorat-api/pkg/jobs"
	"github.com/noah-isme/doctorat-api/pkg/kafka"
)

// NotificationJobType is the queue job type for rendered notifications.
const NotificationJobType = "notification.render"

// NotificationJob describes one certificate to render and deliver.
type NotificationJob struct {
	Kind      export.CertificateKind
	UserID    string
	Reference string
	Comment   string
	DedupKey  string
}

// Notification is what a Sender delivers.
type Notification struct {
	Recipient  models.User
	Subject    string
	Attachment string
	Reference  string
}

// Sender delivers rendered notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender records deliveries in the log instead of mailing them.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification delivered",
		zap.String("to", n.Recipient.Email),
		zap.String("subject", n.Subject),
		zap.String("attachment", n.Attachment),
		zap.String("reference", n.Reference),
	)
	return nil
}

type dedupStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job[NotificationJob]) error
}

type demandeReader interface {
	GetByID(ctx context.Context, id string) (*models.Demande, error)
}

type artifactStore interface {
	Save(name string, data []byte) (string, error)
}

type userResolver interface {
	ResolveUser(ctx context.Context, id string) (*models.User, error)
}

// NotificationService turns workflow events into rendered certificates. Delivery is at least
// once, so every event is claimed under a dedup key before a job is queued.
type NotificationService struct {
	users    userResolver
	demandes demandeReader
	dedup    dedupStore
	queue    jobEnqueuer
	pdf      *export.PDFExporter
	files    artifactStore
	sender   Sender
	ttl      time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NotificationDeps groups the collaborators of NotificationService.
type NotificationDeps struct {
	Users    userResolver
	Demandes demandeReader
	Dedup    dedupStore
	PDF      *export.PDFExporter
	Files    artifactStore
	Sender   Sender
	DedupTTL time.Duration
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewNotificationService constructs the service. The queue is attached with UseQueue.
func NewNotificationService(deps NotificationDeps) *NotificationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sender == nil {
		deps.Sender = LogSender{Logger: deps.Logger}
	}
	if deps.DedupTTL <= 0 {
		deps.DedupTTL = 7 * 24 * time.Hour
	}
	return &NotificationService{
		users:    deps.Users,
		demandes: deps.Demandes,
		dedup:    deps.Dedup,
		pdf:      deps.PDF,
		files:    deps.Files,
		sender:   deps.Sender,
		ttl:      deps.DedupTTL,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// UseQueue sets the queue jobs are dispatched to.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// Router wires the event handlers to their topics.
func (s *NotificationService) Router(dossierTopic string) *kafka.Router {
	if dossierTopic == "" {
		dossierTopic = models.TopicDossierStatusChanged
	}
	return kafka.NewRouter(s.logger).
		Register(kafka.HandlerFunc(s.HandleDossierEvent), dossierTopic).
		Register(kafka.HandlerFunc(s.HandleDemandeEvent), models.DefenseTopics...).
		Fallback(kafka.HandlerFunc(s.handleUnrouted))
}

func (s *NotificationService) handleUnrouted(ctx context.Context, msg kafka.Message) error {
	s.metrics.RecordConsumed(msg.Topic, "unrouted")
	s.logger.Warn("event on unrouted topic acknowledged", zap.String("topic", msg.Topic), zap.String("key", msg.Key))
	return nil
}

// HandleDossierEvent issues an attestation on VALIDE and a rejection notice on REJETE.
func (s *NotificationService) HandleDossierEvent(ctx context.Context, msg kafka.Message) error {
	var event models.DossierEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.metrics.RecordConsumed(msg.Topic, "malformed")
		return fmt.Errorf("decode dossier event: %w", err)
	}
	var kind export.CertificateKind
	switch event.NewStatus {
	case models.DossierValide:
		kind = export.CertificateAttestation
	case models.DossierRejete:
		kind = export.CertificateRejection
	default:
		s.metrics.RecordConsumed(msg.Topic, "ignored")
		return nil
	}
	return s.dispatch(ctx, msg.Topic, NotificationJob{
		Kind:      kind,
		UserID:    event.DoctorantID,
		Reference: event.DossierID,
		Comment:   event.Comment,
		DedupKey:  fmt.Sprintf("dossier:%s:%s", event.DossierID, event.NewStatus),
	})
}

// HandleDemandeEvent notifies the doctorant on submission, authorization and scheduling.
func (s *NotificationService) HandleDemandeEvent(ctx context.Context, msg kafka.Message) error {
	demandeID := strings.TrimSpace(string(msg.Value))
	if demandeID == "" {
		demandeID = msg.Key
	}
	if demandeID == "" {
		s.metrics.RecordConsumed(msg.Topic, "malformed")
		return fmt.Errorf("empty demande id on %s", msg.Topic)
	}
	var kind export.CertificateKind
	switch msg.Topic {
	case models.TopicDemandeSubmitted:
		kind = export.CertificateAcknowledge
	case models.TopicSoutenanceAutorisee:
		kind = export.CertificateAuthorization
	case models.TopicSoutenancePlanifiee:
		kind = export.CertificateConvocation
	default:
		s.logger.Info("defense event", zap.String("topic", msg.Topic), zap.String("demande_id", demandeID))
		s.metrics.RecordConsumed(msg.Topic, "ignored")
		return nil
	}
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		s.metrics.RecordConsumed(msg.Topic, "failed")
		return fmt.Errorf("load demande %s: %w", demandeID, err)
	}
	return s.dispatch(ctx, msg.Topic, NotificationJob{
		Kind:      kind,
		UserID:    demande.DoctorantID,
		Reference: demandeID,
		DedupKey:  fmt.Sprintf("demande:%s:%s", demandeID, msg.Topic),
	})
}

func (s *NotificationService) dispatch(ctx context.Context, topic string, job NotificationJob) error {
	claimed, err := s.dedup.Claim(ctx, job.DedupKey, s.ttl)
	if err != nil {
		s.metrics.RecordConsumed(topic, "failed")
		return fmt.Errorf("claim %s: %w", job.DedupKey, err)
	}
	if !claimed {
		s.logger.Debug("duplicate event skipped", zap.String("key", job.DedupKey))
		s.metrics.RecordConsumed(topic, "duplicate")
		return nil
	}
	if err := s.queue.Enqueue(jobs.Job[NotificationJob]{ID: uuid.NewString(), Type: NotificationJobType, Payload: job}); err != nil {
		if relErr := s.dedup.Release(ctx, job.DedupKey); relErr != nil {
			s.logger.Warn("failed to release dedup key", zap.String("key", job.DedupKey), zap.Error(relErr))
		}
		s.metrics.RecordConsumed(topic, "failed")
		return fmt.Errorf("enqueue %s: %w", job.DedupKey, err)
	}
	s.metrics.RecordConsumed(topic, "queued")
	return nil
}

// Render is the queue handler: it renders the certificate, stores it and hands it to the sender.
func (s *NotificationService) Render(ctx context.Context, job jobs.Job[NotificationJob]) error {
	payload := job.Payload
	user, err := s.users.ResolveUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", payload.UserID, err)
	}
	now := s.now().UTC()
	cert := export.Certificate{
		Kind:      payload.Kind,
		Recipient: recipientName(user),
		Reference: payload.Reference,
		Year:      now.Year(),
		Comment:   payload.Comment,
	}
	if payload.Kind == export.CertificateConvocation {
		demande, err := s.demandes.GetByID(ctx, payload.Reference)
		if err != nil {
			return fmt.Errorf("load demande %s: %w", payload.Reference, err)
		}
		if demande.DateSoutenance != nil {
			cert.Date = demande.DateSoutenance.Format("02/01/2006")
		}
		if demande.HeureSoutenance != nil {
			cert.Time = *demande.HeureSoutenance
		}
		if demande.LieuSoutenance != nil {
			cert.Location = *demande.LieuSoutenance
		}
	}
	data, err := s.pdf.RenderCertificate(cert)
	if err != nil {
		return fmt.Errorf("render %s: %w", payload.Kind, err)
	}
	name := fmt.Sprintf("%s/%s_%s.pdf", strings.ToLower(string(payload.Kind)), payload.Reference, now.Format("20060102T150405"))
	path, err := s.files.Save(name, data)
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return s.sender.Send(ctx, Notification{
		Recipient:  *user,
		Subject:    subjectFor(payload.Kind),
		Attachment: path,
		Reference:  payload.Reference,
	})
}

func recipientName(u *models.User) string {
	if strings.TrimSpace(u.FullName) != "" {
		return u.FullName
	}
	return u.Email
}

func subjectFor(kind export.CertificateKind) string {
	switch kind {
	case export.CertificateAttestation:
		return "Votre attestation d'inscription"
	case export.CertificateRejection:
		return "Décision sur votre dossier d'inscription"
	case export.CertificateAcknowledge:
		return "Accusé de réception de votre demande de soutenance"
	case export.CertificateAuthorization:
		return "Autorisation de soutenance"
	case export.CertificateConvocation:
		return "Convocation à votre soutenance"
	default:
		return string(kind)
	}
}

package models

import "time"

// Event bus topics.
const (
	TopicDossierStatusChanged = "dossier-status-changed"
	TopicDemandeSubmitted     = "demande-submitted"
	TopicJuryProposed         = "jury-proposed"
	TopicSoutenanceAutorisee  = "soutenance-authorisee"
	TopicSoutenancePlanifiee  = "soutenance-planified"
	TopicRapportOK            = "rapport-ok"
	TopicDureeAlerte          = "duree-alerte"
	TopicDemandeRejetee       = "demande-rejetee"
)

// DefenseTopics lists every topic carrying a bare demande id.
var DefenseTopics = []string{
	TopicDemandeSubmitted,
	TopicJuryProposed,
	TopicSoutenanceAutorisee,
	TopicSoutenancePlanifiee,
	TopicRapportOK,
	TopicDureeAlerte,
	TopicDemandeRejetee,
}

// DossierEventType tags enrollment status changes.
type DossierEventType string

const (
	EventSubmission          DossierEventType = "SUBMISSION"
	EventValidationDirecteur DossierEventType = "VALIDATION_DIRECTEUR"
	EventValidationAdmin     DossierEventType = "VALIDATION_ADMIN"
)

// DossierEvent is the payload published on TopicDossierStatusChanged.
type DossierEvent struct {
	DossierID   string           `json:"dossierId"`
	DoctorantID string           `json:"doctorantId"`
	DirecteurID string           `json:"directorId"`
	OldStatus   DossierStatus    `json:"oldStatus,omitempty"`
	NewStatus   DossierStatus    `json:"newStatus"`
	Subject     string           `json:"subject"`
	Comment     string           `json:"comment,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	EventType   DossierEventType `json:"eventType"`
}

// Aggregate types recorded on outbox rows.
const (
	AggregateDossier = "dossier"
	AggregateDemande = "demande"
)

// OutboxMessage is an event committed with its state change and awaiting publication.
type OutboxMessage struct {
	ID            string     `db:"id"`
	AggregateType string     `db:"aggregate_type"`
	AggregateID   string     `db:"aggregate_id"`
	EventType     string     `db:"event_type"`
	Topic         string     `db:"topic"`
	MessageKey    string     `db:"message_key"`
	Payload       []byte     `db:"payload"`
	CorrelationID *string    `db:"correlation_id"`
	CreatedAt     time.Time  `db:"created_at"`
	PublishedAt   *time.Time `db:"published_at"`
	Attempts      int        `db:"attempts"`
	LastError     *string    `db:"last_error"`
	ParkedAt      *time.Time `db:"parked_at"`
}

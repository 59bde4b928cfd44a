package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/middleware/requestid"
)

type outboxWriter interface {
	Insert(ctx context.Context, msg *models.OutboxMessage) error
}

// EventOutbox records domain events in the caller's transaction for later publication.
type EventOutbox struct {
	store        outboxWriter
	dossierTopic string
	now          func() time.Time
}

// NewEventOutbox builds the writer; dossierTopic defaults to models.TopicDossierStatusChanged.
func NewEventOutbox(store outboxWriter, dossierTopic string) *EventOutbox {
	if dossierTopic == "" {
		dossierTopic = models.TopicDossierStatusChanged
	}
	return &EventOutbox{store: store, dossierTopic: dossierTopic, now: time.Now}
}

// DossierChanged enqueues an enrollment status change keyed by dossier id.
func (o *EventOutbox) DossierChanged(ctx context.Context, d *models.Dossier, old models.DossierStatus, eventType models.DossierEventType, comment string) error {
	event := models.DossierEvent{
		DossierID:   d.ID,
		DoctorantID: d.DoctorantID,
		DirecteurID: d.DirecteurID,
		OldStatus:   old,
		NewStatus:   d.Status,
		Subject:     d.Sujet,
		Comment:     comment,
		Timestamp:   o.now().UTC(),
		EventType:   eventType,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal dossier event: %w", err)
	}
	return o.store.Insert(ctx, &models.OutboxMessage{
		AggregateType: models.AggregateDossier,
		AggregateID:   d.ID,
		EventType:     string(eventType),
		Topic:         o.dossierTopic,
		MessageKey:    d.ID,
		Payload:       payload,
		CorrelationID: correlationID(ctx),
	})
}

// DemandeEvent enqueues a defense event whose payload is the demande id.
func (o *EventOutbox) DemandeEvent(ctx context.Context, topic, demandeID string) error {
	return o.store.Insert(ctx, &models.OutboxMessage{
		AggregateType: models.AggregateDemande,
		AggregateID:   demandeID,
		EventType:     topic,
		Topic:         topic,
		MessageKey:    demandeID,
		Payload:       []byte(demandeID),
		CorrelationID: correlationID(ctx),
	})
}

func correlationID(ctx context.Context) *string {
	if id := requestid.FromContext(ctx); id != "" {
		return &id
	}
	return nil
}

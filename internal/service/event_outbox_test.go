package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/middleware/requestid"
)

func TestEventOutboxDossierPayload(t *testing.T) {
	store := &stubOutbox{}
	outbox := NewEventOutbox(store, "")
	outbox.now = fixedClock(day0)
	ctx := requestid.WithValue(context.Background(), "req-42")
	d := &models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Sujet: "Sujet", Status: models.DossierEnAttenteAdmin}

	require.NoError(t, outbox.DossierChanged(ctx, d, models.DossierEnAttenteDirecteur, models.EventValidationDirecteur, "bien"))
	require.Len(t, store.messages, 1)
	msg := store.messages[0]
	assert.Equal(t, models.TopicDossierStatusChanged, msg.Topic)
	assert.Equal(t, models.AggregateDossier, msg.AggregateType)
	assert.Equal(t, "d1", msg.MessageKey)
	require.NotNil(t, msg.CorrelationID)
	assert.Equal(t, "req-42", *msg.CorrelationID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "dir-1", payload["directorId"])
	assert.Equal(t, "EN_ATTENTE_DIRECTEUR", payload["oldStatus"])
	assert.Equal(t, "EN_ATTENTE_ADMIN", payload["newStatus"])
	assert.Equal(t, "Sujet", payload["subject"])
	assert.Equal(t, "bien", payload["comment"])
	assert.Equal(t, "VALIDATION_DIRECTEUR", payload["eventType"])
	assert.Equal(t, day0.Format(time.RFC3339), payload["timestamp"])
}

func TestEventOutboxDemandePayloadIsID(t *testing.T) {
	store := &stubOutbox{}
	outbox := NewEventOutbox(store, "custom-dossier-topic")

	require.NoError(t, outbox.DemandeEvent(context.Background(), models.TopicRapportOK, "dm1"))
	msg := store.messages[0]
	assert.Equal(t, models.TopicRapportOK, msg.Topic)
	assert.Equal(t, []byte("dm1"), msg.Payload)
	assert.Nil(t, msg.CorrelationID)
	assert.Equal(t, "custom-dossier-topic", outbox.dossierTopic)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/workflow"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

func boolPtr(v bool) *bool { return &v }

func TestDossierApprovalScenario(t *testing.T) {
	f := newDossierFixture(t, day0.AddDate(0, 0, 5))
	ctx := context.Background()

	dossier, err := f.svc.Submit(ctx, "stu-1", submitRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.DossierEnAttenteDirecteur, dossier.Status)

	dossier, err = f.svc.ValidateByDirecteur(ctx, dossier.ID, "dir-1", dto.DirecteurValidationRequest{Approve: boolPtr(true), Commentaire: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.DossierEnAttenteAdmin, dossier.Status)
	require.NotNil(t, dossier.DateValidationDirecteur)

	dossier, err = f.svc.ValidateByAdmin(ctx, dossier.ID, dto.AdminValidationRequest{Approve: boolPtr(true), GrantDerogation: true})
	require.NoError(t, err)
	assert.Equal(t, models.DossierValide, dossier.Status)
	assert.True(t, dossier.Derogation)
	assert.True(t, f.dossiers.dossiers[dossier.ID].Derogation)

	require.Len(t, f.outbox.messages, 3)
	var last models.DossierEvent
	require.NoError(t, json.Unmarshal(f.outbox.messages[2].Payload, &last))
	assert.Equal(t, models.DossierEnAttenteAdmin, last.OldStatus)
	assert.Equal(t, models.DossierValide, last.NewStatus)
	assert.Equal(t, models.EventValidationAdmin, last.EventType)
	assert.Equal(t, "dir-1", last.DirecteurID)
}

func TestDirecteurRejectionIsFinal(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur})
	ctx := context.Background()

	dossier, err := f.svc.ValidateByDirecteur(ctx, "d1", "dir-1", dto.DirecteurValidationRequest{Approve: boolPtr(false), Commentaire: "sujet trop large"})
	require.NoError(t, err)
	assert.Equal(t, models.DossierRejete, dossier.Status)
	require.NotNil(t, f.dossiers.dossiers["d1"].CommentaireDirecteur)
	assert.Equal(t, "sujet trop large", *f.dossiers.dossiers["d1"].CommentaireDirecteur)

	_, err = f.svc.ValidateByAdmin(ctx, "d1", dto.AdminValidationRequest{Approve: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	assert.Equal(t, models.DossierRejete, f.dossiers.dossiers["d1"].Status)
	assert.Len(t, f.outbox.messages, 1)
}

func TestOutOfOrderValidationLeavesStateUntouched(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur},
		models.Dossier{ID: "d2", DoctorantID: "stu-2", DirecteurID: "dir-1", Status: models.DossierValide})
	ctx := context.Background()

	_, err := f.svc.ValidateByAdmin(ctx, "d1", dto.AdminValidationRequest{Approve: boolPtr(true)})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
	assert.Equal(t, string(models.DossierEnAttenteDirecteur), appErrors.FromError(err).Details["currentStatus"])

	_, err = f.svc.ValidateByDirecteur(ctx, "d2", "dir-1", dto.DirecteurValidationRequest{Approve: boolPtr(false)})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	assert.Equal(t, models.DossierEnAttenteDirecteur, f.dossiers.dossiers["d1"].Status)
	assert.Equal(t, models.DossierValide, f.dossiers.dossiers["d2"].Status)
	assert.Empty(t, f.dossiers.transitions)
	assert.Empty(t, f.outbox.messages)
}

func TestOnlyAssignedDirecteurMayValidate(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur})

	_, err := f.svc.ValidateByDirecteur(context.Background(), "d1", "dir-2", dto.DirecteurValidationRequest{Approve: boolPtr(true)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, models.DossierEnAttenteDirecteur, f.dossiers.dossiers["d1"].Status)
}

func TestValidationRequiresVerdict(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur})

	_, err := f.svc.ValidateByDirecteur(context.Background(), "d1", "dir-1", dto.DirecteurValidationRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestConcurrentTransitionReportsInvalidState(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur})
	ctx := context.Background()

	stale, err := f.svc.load(ctx, "d1")
	require.NoError(t, err)
	_, err = f.svc.ValidateByDirecteur(ctx, "d1", "dir-1", dto.DirecteurValidationRequest{Approve: boolPtr(true)})
	require.NoError(t, err)

	err = f.svc.transition(ctx, stale, workflow.ActionApproveDirecteur, models.EventValidationDirecteur, "", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	assert.Equal(t, models.DossierEnAttenteAdmin, f.dossiers.dossiers["d1"].Status)
	assert.Len(t, f.outbox.messages, 1)
}

func TestOutboxFailureRollsBackTransition(t *testing.T) {
	f := newDossierFixture(t, day0,
		models.Dossier{ID: "d1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierEnAttenteDirecteur})
	f.outbox.err = errors.New("outbox unavailable")

	dossier, err := f.svc.load(context.Background(), "d1")
	require.NoError(t, err)
	err = f.svc.transition(context.Background(), dossier, workflow.ActionApproveDirecteur, models.EventValidationDirecteur, "", nil)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, models.DossierEnAttenteDirecteur, dossier.Status)
}

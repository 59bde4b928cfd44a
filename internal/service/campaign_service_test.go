package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

func campaignFixture(t *testing.T) (*CampaignService, *stubCampaignRepo, *stubDossierRepo) {
	t.Helper()
	repo := newStubCampaignRepo()
	dossiers := newStubDossierRepo()
	svc := NewCampaignService(repo, dossiers, validator.New(), zap.NewNop())
	svc.now = fixedClock(day0.AddDate(0, 0, 5))
	return svc, repo, dossiers
}

func TestCampaignCreateAndStatus(t *testing.T) {
	svc, _, _ := campaignFixture(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, dto.UpsertCampaignRequest{Nom: " 2025-2026 ", DateOuverture: day0, DateFermeture: day0.AddDate(0, 0, 30)})
	require.NoError(t, err)
	assert.Equal(t, "2025-2026", view.Nom)
	assert.True(t, view.Active)
	assert.Equal(t, models.CampaignStatusInProgress, view.Status)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, view.ID, current.ID)

	_, err = svc.Create(ctx, dto.UpsertCampaignRequest{Nom: "2025-2026", DateOuverture: day0, DateFermeture: day0.AddDate(0, 0, 30)})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	inactive := false
	updated, err := svc.Update(ctx, view.ID, dto.UpsertCampaignRequest{Nom: "2025-2026", DateOuverture: day0, DateFermeture: day0.AddDate(0, 0, 30), Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInactive, updated.Status)

	_, err = svc.Current(ctx)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCampaignRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := campaignFixture(t)

	_, err := svc.Create(context.Background(), dto.UpsertCampaignRequest{Nom: "bad", DateOuverture: day0, DateFermeture: day0})
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	_, err = svc.Create(context.Background(), dto.UpsertCampaignRequest{DateOuverture: day0, DateFermeture: day0.AddDate(0, 1, 0)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCampaignStatusDerivation(t *testing.T) {
	svc, repo, _ := campaignFixture(t)
	repo.campaigns["future"] = &models.Campaign{ID: "future", DateOuverture: day0.AddDate(0, 1, 0), DateFermeture: day0.AddDate(0, 2, 0), Active: true}
	repo.campaigns["past"] = &models.Campaign{ID: "past", DateOuverture: day0.AddDate(-1, 0, 0), DateFermeture: day0, Active: true}

	status, err := svc.Status(context.Background(), "future")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusNotStarted, status)

	status, err = svc.Status(context.Background(), "past")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusClosed, status)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCampaignDeleteOnlyWhenEmpty(t *testing.T) {
	svc, repo, _ := campaignFixture(t)
	repo.campaigns["full"] = &models.Campaign{ID: "full"}
	repo.campaigns["empty"] = &models.Campaign{ID: "empty"}
	repo.dossiers["full"] = 1

	err := svc.Delete(context.Background(), "full")
	require.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, 1, appErrors.FromError(err).Details["dossiers"])
	assert.Contains(t, repo.campaigns, "full")

	repo.countErr = errors.New("db down")
	err = svc.Delete(context.Background(), "full")
	require.ErrorIs(t, err, appErrors.ErrConflict)
	assert.NotContains(t, appErrors.FromError(err).Details, "dossiers")
	repo.countErr = nil

	require.NoError(t, svc.Delete(context.Background(), "empty"))
	assert.NotContains(t, repo.campaigns, "empty")

	assert.ErrorIs(t, svc.Delete(context.Background(), "empty"), appErrors.ErrNotFound)
}

func TestCampaignExportDossiers(t *testing.T) {
	svc, repo, dossiers := campaignFixture(t)
	repo.campaigns["c1"] = &models.Campaign{ID: "c1", Nom: "Campagne 2025/2026"}
	dossiers.dossiers["d1"] = &models.Dossier{ID: "d1", CampaignID: "c1", DoctorantID: "stu-1", DirecteurID: "dir-1", Status: models.DossierValide, DateSoumission: day0}
	dossiers.dossiers["d2"] = &models.Dossier{ID: "d2", CampaignID: "other", DoctorantID: "stu-2"}

	name, data, err := svc.ExportDossiers(context.Background(), "c1", models.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "dossiers_campagne-2025-2026.csv", name)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,doctorant,directeur,status,date_soumission,reinscription,derogation", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "d1,stu-1,dir-1,VALIDE,2025-09-01T00:00:00Z"))
}

func TestCampaignExportDossiersAsPDF(t *testing.T) {
	svc, repo, dossiers := campaignFixture(t)
	repo.campaigns["c1"] = &models.Campaign{ID: "c1", Nom: "Campagne 2025"}
	dossiers.dossiers["d1"] = &models.Dossier{ID: "d1", CampaignID: "c1", DoctorantID: "stu-1", Status: models.DossierValide, DateSoumission: day0}

	name, data, err := svc.ExportDossiers(context.Background(), "c1", models.ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "dossiers_campagne-2025.pdf", name)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	_, _, err = svc.ExportDossiers(context.Background(), "c1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)
}

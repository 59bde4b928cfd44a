package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/models"
)

func newCampaignRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCampaignRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newCampaignRepoMock(t)
	defer cleanup()

	repo := NewCampaignRepository(db)
	open := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	campaign := &models.Campaign{Nom: "Campagne 2025", DateOuverture: open, DateFermeture: open.AddDate(0, 1, 0), Active: true}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campagnes")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Create(context.Background(), campaign))
	require.NotEmpty(t, campaign.ID)

	rows := sqlmock.NewRows([]string{"id", "nom", "date_ouverture", "date_fermeture", "active", "created_at", "updated_at"}).
		AddRow(campaign.ID, campaign.Nom, open, open.AddDate(0, 1, 0), true, open, open)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, nom, date_ouverture")).
		WithArgs(campaign.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.Equal(t, "Campagne 2025", found.Nom)
	require.True(t, found.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepositoryNameTaken(t *testing.T) {
	db, mock, cleanup := newCampaignRepoMock(t)
	defer cleanup()

	repo := NewCampaignRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM campagnes")).
		WithArgs("Campagne 2025", "camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.NameTaken(context.Background(), "Campagne 2025", "camp-1")
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepositoryDeleteOnlyWhenEmpty(t *testing.T) {
	db, mock, cleanup := newCampaignRepoMock(t)
	defer cleanup()

	repo := NewCampaignRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM campagnes c WHERE c.id = $1 AND NOT EXISTS")).
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM campagnes c WHERE c.id = $1 AND NOT EXISTS")).
		WithArgs("camp-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(context.Background(), "camp-1")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = repo.Delete(context.Background(), "camp-2")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

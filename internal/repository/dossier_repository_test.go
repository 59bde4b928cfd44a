package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
)

func newDossierRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var dossierRowColumns = []string{"id", "campagne_id", "doctorant_id", "directeur_id", "sujet", "collaboration", "status",
	"date_soumission", "date_inscription_initiale", "derogation", "commentaire_directeur", "date_validation_directeur",
	"commentaire_admin", "date_validation_admin", "reinscription", "previous_dossier_id", "updated_at"}

func TestDossierRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dossiers")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dossier := &models.Dossier{CampaignID: "camp-1", DoctorantID: "doc-1", DirecteurID: "dir-1", Sujet: "Graphes"}
	require.NoError(t, repo.Create(context.Background(), dossier))
	require.NotEmpty(t, dossier.ID)
	require.Equal(t, models.DossierEnAttenteDirecteur, dossier.Status)
	require.False(t, dossier.DateSoumission.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDossierRepositoryCreateJoinsTransaction(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dossiers")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	runner := database.NewTxRunner(db, 0)
	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := repo.Create(ctx, &models.Dossier{CampaignID: "camp-1", DoctorantID: "doc-1"}); err != nil {
			return err
		}
		return sql.ErrConnDone
	})
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDossierRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(dossierRowColumns).
		AddRow("dos-1", "camp-1", "doc-1", "dir-1", "Graphes", nil, "EN_ATTENTE_DIRECTEUR", now, now, false, nil, nil, nil, nil, false, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, campagne_id, doctorant_id")).
		WithArgs("dir-1", "EN_ATTENTE_DIRECTEUR").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.DossierFilter{
		DirecteurID: "dir-1",
		Status:      []models.DossierStatus{models.DossierEnAttenteDirecteur},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dos-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDossierRepositoryInitialInscription(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	initial := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doctorant_id, MIN(date_inscription_initiale)")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"doctorant_id", "date_inscription_initiale", "derogation"}).AddRow("doc-1", initial, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doctorant_id, MIN(date_inscription_initiale)")).
		WithArgs("doc-2").
		WillReturnRows(sqlmock.NewRows([]string{"doctorant_id", "date_inscription_initiale", "derogation"}))

	found, err := repo.InitialInscription(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, initial, found.Date)
	require.True(t, found.Derogation)

	none, err := repo.InitialInscription(context.Background(), "doc-2")
	require.NoError(t, err)
	require.Nil(t, none)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDossierRepositoryTransitionGuard(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	now := time.Now()
	comment := "ok"
	mock.ExpectExec(`UPDATE dossiers SET status = .+, updated_at = NOW\(\), commentaire_directeur = .+, date_validation_directeur = .+ WHERE id = .+ AND status = `).
		WithArgs("EN_ATTENTE_ADMIN", &comment, now, "dos-1", "EN_ATTENTE_DIRECTEUR").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE dossiers SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	transition := StatusTransition{
		ID:   "dos-1",
		From: string(models.DossierEnAttenteDirecteur),
		To:   string(models.DossierEnAttenteAdmin),
		Fields: map[string]interface{}{
			"date_validation_directeur": now,
			"commentaire_directeur":     &comment,
		},
	}
	require.NoError(t, repo.Transition(context.Background(), transition))

	err := repo.Transition(context.Background(), transition)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDossierRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newDossierRepoMock(t)
	defer cleanup()

	repo := NewDossierRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM dossiers WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

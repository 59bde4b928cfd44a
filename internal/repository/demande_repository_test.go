package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
)

func newDemandeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDemandeRepositoryCreateJuryWithMembers(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jurys")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO membres_jury")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO membres_jury")).WillReturnResult(sqlmock.NewResult(1, 1))

	jury := &models.Jury{DemandeID: "dem-1", Membres: []models.MembreJury{
		{Nom: "Pr. Alaoui", Type: models.MembreRapporteur},
		{Nom: "Dr. Benali", Type: models.MembreExaminateur},
	}}
	require.NoError(t, repo.CreateJury(context.Background(), jury))
	require.NotEmpty(t, jury.ID)
	require.Equal(t, jury.ID, jury.Membres[1].JuryID)
	require.Equal(t, 1, jury.Membres[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandeRepositoryGetJury(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, demande_id, rapports_favorables FROM jurys")).
		WithArgs("dem-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "demande_id", "rapports_favorables"}).AddRow("jury-1", "dem-1", false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, jury_id, nom, type, position FROM membres_jury")).
		WithArgs("jury-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "jury_id", "nom", "type", "position"}).
			AddRow("m-1", "jury-1", "Pr. Alaoui", "RAPPORTEUR", 0).
			AddRow("m-2", "jury-1", "Pr. Chraibi", "RAPPORTEUR", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, demande_id, rapports_favorables FROM jurys")).
		WithArgs("dem-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "demande_id", "rapports_favorables"}))

	jury, err := repo.GetJury(context.Background(), "dem-1")
	require.NoError(t, err)
	require.Equal(t, 2, jury.RapporteurCount())

	none, err := repo.GetJury(context.Background(), "dem-2")
	require.NoError(t, err)
	require.Nil(t, none)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandeRepositoryMarkRapportsFavorablesOnce(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jurys SET rapports_favorables = TRUE WHERE demande_id = $1 AND rapports_favorables = FALSE")).
		WithArgs("dem-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jurys SET rapports_favorables = TRUE")).
		WithArgs("dem-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := repo.MarkRapportsFavorables(context.Background(), "dem-1")
	require.NoError(t, err)
	require.True(t, flipped)

	flipped, err = repo.MarkRapportsFavorables(context.Background(), "dem-1")
	require.NoError(t, err)
	require.False(t, flipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandeRepositoryLocksJuryBeforeCountingReports(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT rapports_favorables FROM jurys WHERE demande_id = $1 FOR UPDATE")).
		WithArgs("dem-1").
		WillReturnRows(sqlmock.NewRows([]string{"rapports_favorables"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rapports")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs("dem-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "favorables"}).AddRow(2, 2))
	mock.ExpectCommit()

	var tally models.RapportTally
	err := database.NewTxRunner(db, 0).RunInTx(context.Background(), func(ctx context.Context) error {
		favorable, err := repo.LockJury(ctx, "dem-1")
		require.NoError(t, err)
		require.False(t, favorable)
		if err := repo.CreateRapport(ctx, &models.Rapport{DemandeID: "dem-1", Chemin: "r.pdf", Favorable: true}); err != nil {
			return err
		}
		tally, err = repo.TallyRapports(ctx, "dem-1")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, models.RapportTally{Total: 2, Favorables: 2}, tally)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandeRepositoryTallyRapports(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE favorable) AS favorables FROM rapports")).
		WithArgs("dem-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "favorables"}).AddRow(2, 1))

	tally, err := repo.TallyRapports(context.Background(), "dem-1")
	require.NoError(t, err)
	require.Equal(t, models.RapportTally{Total: 2, Favorables: 1}, tally)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemandeRepositoryListByStatus(t *testing.T) {
	db, mock, cleanup := newDemandeRepoMock(t)
	defer cleanup()

	repo := NewDemandeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, doctorant_id, manuscrit_path, status")).
		WithArgs("AUTORISEE", "PLANIFIEE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctorant_id", "manuscrit_path", "status", "date_soumission",
			"date_soutenance", "heure_soutenance", "lieu_soutenance", "derogation_duree", "updated_at"}))

	list, err := repo.List(context.Background(), models.DemandeFilter{
		Status: []models.DemandeStatus{models.DemandeAutorisee, models.DemandePlanifiee},
	})
	require.NoError(t, err)
	require.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

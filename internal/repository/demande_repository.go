package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
)

const demandeColumns = `id, doctorant_id, manuscrit_path, status, date_soumission, date_soutenance, heure_soutenance,
       lieu_soutenance, derogation_duree, updated_at`

const documentSoutenanceColumns = `id, demande_id, nom_original, chemin, type, mime_type, taille, date_upload`

// DemandeRepository persists defense requests and the entities they own.
type DemandeRepository struct {
	db *sqlx.DB
}

// NewDemandeRepository constructs the repository.
func NewDemandeRepository(db *sqlx.DB) *DemandeRepository {
	return &DemandeRepository{db: db}
}

// Create inserts the demande row.
func (r *DemandeRepository) Create(ctx context.Context, demande *models.Demande) error {
	if demande.ID == "" {
		demande.ID = uuid.NewString()
	}
	if demande.Status == "" {
		demande.Status = models.DemandeEnAttentePrerequis
	}
	if demande.DateSoumission.IsZero() {
		demande.DateSoumission = time.Now().UTC()
	}
	demande.UpdatedAt = demande.DateSoumission
	const query = `INSERT INTO demandes (` + demandeColumns + `)
	VALUES (:id, :doctorant_id, :manuscrit_path, :status, :date_soumission, :date_soutenance, :heure_soutenance,
	        :lieu_soutenance, :derogation_duree, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, demande); err != nil {
		return fmt.Errorf("create demande: %w", err)
	}
	return nil
}

// GetByID fetches the demande row only.
func (r *DemandeRepository) GetByID(ctx context.Context, id string) (*models.Demande, error) {
	var demande models.Demande
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &demande, `SELECT `+demandeColumns+` FROM demandes WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &demande, nil
}

// List returns demandes matching the filter, most recent first.
func (r *DemandeRepository) List(ctx context.Context, filter models.DemandeFilter) ([]models.Demande, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + demandeColumns + ` FROM demandes`)

	conditions := make([]string, 0, 2)
	if filter.DoctorantID != "" {
		args = append(args, filter.DoctorantID)
		conditions = append(conditions, fmt.Sprintf("doctorant_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY date_soumission DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var demandes []models.Demande
	if err := r.db.SelectContext(ctx, &demandes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list demandes: %w", err)
	}
	return demandes, nil
}

// Transition applies a guarded status change.
func (r *DemandeRepository) Transition(ctx context.Context, t StatusTransition) error {
	return applyTransition(ctx, database.Executor(ctx, r.db), "demandes", t)
}

// CreatePrerequis inserts the 1:1 prerequisite record.
func (r *DemandeRepository) CreatePrerequis(ctx context.Context, p *models.Prerequis) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const query = `INSERT INTO prerequis (id, demande_id, nb_articles, nb_conferences, heures_formation, valide)
	VALUES (:id, :demande_id, :nb_articles, :nb_conferences, :heures_formation, :valide)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, p); err != nil {
		return fmt.Errorf("create prerequis: %w", err)
	}
	return nil
}

// GetPrerequis returns the prerequisite record, nil when absent.
func (r *DemandeRepository) GetPrerequis(ctx context.Context, demandeID string) (*models.Prerequis, error) {
	var p models.Prerequis
	const query = `SELECT id, demande_id, nb_articles, nb_conferences, heures_formation, valide FROM prerequis WHERE demande_id = $1`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &p, query, demandeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prerequis: %w", err)
	}
	return &p, nil
}

// CreateJury inserts the jury and its ordered members. Fails on the unique demande_id when a jury exists.
func (r *DemandeRepository) CreateJury(ctx context.Context, jury *models.Jury) error {
	exec := database.Executor(ctx, r.db)
	if jury.ID == "" {
		jury.ID = uuid.NewString()
	}
	const juryQuery = `INSERT INTO jurys (id, demande_id, rapports_favorables) VALUES (:id, :demande_id, :rapports_favorables)`
	if _, err := sqlx.NamedExecContext(ctx, exec, juryQuery, jury); err != nil {
		return fmt.Errorf("create jury: %w", err)
	}
	const memberQuery = `INSERT INTO membres_jury (id, jury_id, nom, type, position) VALUES (:id, :jury_id, :nom, :type, :position)`
	for i := range jury.Membres {
		member := &jury.Membres[i]
		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		member.JuryID = jury.ID
		member.Position = i
		if _, err := sqlx.NamedExecContext(ctx, exec, memberQuery, member); err != nil {
			return fmt.Errorf("create jury member: %w", err)
		}
	}
	return nil
}

// GetJury returns the jury with its members, nil when none was proposed.
func (r *DemandeRepository) GetJury(ctx context.Context, demandeID string) (*models.Jury, error) {
	exec := database.Executor(ctx, r.db)
	var jury models.Jury
	const query = `SELECT id, demande_id, rapports_favorables FROM jurys WHERE demande_id = $1`
	if err := sqlx.GetContext(ctx, exec, &jury, query, demandeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get jury: %w", err)
	}
	const membersQuery = `SELECT id, jury_id, nom, type, position FROM membres_jury WHERE jury_id = $1 ORDER BY position`
	if err := sqlx.SelectContext(ctx, exec, &jury.Membres, membersQuery, jury.ID); err != nil {
		return nil, fmt.Errorf("list jury members: %w", err)
	}
	return &jury, nil
}

// LockJury takes a row lock on the demande's jury for the rest of the transaction and returns its
// current favorable flag. Report uploads on the same demande queue behind it.
func (r *DemandeRepository) LockJury(ctx context.Context, demandeID string) (bool, error) {
	var favorable bool
	const query = `SELECT rapports_favorables FROM jurys WHERE demande_id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &favorable, query, demandeID); err != nil {
		return false, fmt.Errorf("lock jury: %w", err)
	}
	return favorable, nil
}

// MarkRapportsFavorables sets the flag once; it reports whether this call flipped it.
func (r *DemandeRepository) MarkRapportsFavorables(ctx context.Context, demandeID string) (bool, error) {
	const query = `UPDATE jurys SET rapports_favorables = TRUE WHERE demande_id = $1 AND rapports_favorables = FALSE`
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, demandeID)
	if err != nil {
		return false, fmt.Errorf("mark rapports favorables: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check jury update rows: %w", err)
	}
	return rows > 0, nil
}

// CreateRapport inserts one report.
func (r *DemandeRepository) CreateRapport(ctx context.Context, rapport *models.Rapport) error {
	if rapport.ID == "" {
		rapport.ID = uuid.NewString()
	}
	if rapport.DateDepot.IsZero() {
		rapport.DateDepot = time.Now().UTC()
	}
	const query = `INSERT INTO rapports (id, demande_id, chemin, favorable, date_depot) VALUES (:id, :demande_id, :chemin, :favorable, :date_depot)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, rapport); err != nil {
		return fmt.Errorf("create rapport: %w", err)
	}
	return nil
}

// ListRapports returns reports in filing order.
func (r *DemandeRepository) ListRapports(ctx context.Context, demandeID string) ([]models.Rapport, error) {
	var rapports []models.Rapport
	const query = `SELECT id, demande_id, chemin, favorable, date_depot FROM rapports WHERE demande_id = $1 ORDER BY date_depot, id`
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &rapports, query, demandeID); err != nil {
		return nil, fmt.Errorf("list rapports: %w", err)
	}
	return rapports, nil
}

// TallyRapports counts filed and favorable reports.
func (r *DemandeRepository) TallyRapports(ctx context.Context, demandeID string) (models.RapportTally, error) {
	var tally models.RapportTally
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE favorable) AS favorables FROM rapports WHERE demande_id = $1`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &tally, query, demandeID); err != nil {
		return tally, fmt.Errorf("tally rapports: %w", err)
	}
	return tally, nil
}

// CreateDocument inserts a defense document row.
func (r *DemandeRepository) CreateDocument(ctx context.Context, doc *models.DocumentSoutenance) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.DateUpload.IsZero() {
		doc.DateUpload = time.Now().UTC()
	}
	const query = `INSERT INTO documents_soutenance (` + documentSoutenanceColumns + `)
	VALUES (:id, :demande_id, :nom_original, :chemin, :type, :mime_type, :taille, :date_upload)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, doc); err != nil {
		return fmt.Errorf("create document soutenance: %w", err)
	}
	return nil
}

// ListDocuments returns the demande documents in upload order.
func (r *DemandeRepository) ListDocuments(ctx context.Context, demandeID string) ([]models.DocumentSoutenance, error) {
	var docs []models.DocumentSoutenance
	const query = `SELECT ` + documentSoutenanceColumns + ` FROM documents_soutenance WHERE demande_id = $1 ORDER BY date_upload, id`
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &docs, query, demandeID); err != nil {
		return nil, fmt.Errorf("list documents soutenance: %w", err)
	}
	return docs, nil
}

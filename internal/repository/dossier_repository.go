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

// DossierUniqueConstraint enforces one dossier per doctorant and campaign.
const DossierUniqueConstraint = "dossiers_doctorant_campagne_key"

const dossierColumns = `id, campagne_id, doctorant_id, directeur_id, sujet, collaboration, status, date_soumission,
       date_inscription_initiale, derogation, commentaire_directeur, date_validation_directeur,
       commentaire_admin, date_validation_admin, reinscription, previous_dossier_id, updated_at`

// DossierRepository persists enrollment dossiers.
type DossierRepository struct {
	db *sqlx.DB
}

// NewDossierRepository constructs the repository.
func NewDossierRepository(db *sqlx.DB) *DossierRepository {
	return &DossierRepository{db: db}
}

// Create inserts a dossier, joining the context transaction if any.
func (r *DossierRepository) Create(ctx context.Context, dossier *models.Dossier) error {
	if dossier.ID == "" {
		dossier.ID = uuid.NewString()
	}
	if dossier.Status == "" {
		dossier.Status = models.DossierEnAttenteDirecteur
	}
	if dossier.DateSoumission.IsZero() {
		dossier.DateSoumission = time.Now().UTC()
	}
	dossier.UpdatedAt = dossier.DateSoumission
	const query = `INSERT INTO dossiers (` + dossierColumns + `)
	VALUES (:id, :campagne_id, :doctorant_id, :directeur_id, :sujet, :collaboration, :status, :date_soumission,
	        :date_inscription_initiale, :derogation, :commentaire_directeur, :date_validation_directeur,
	        :commentaire_admin, :date_validation_admin, :reinscription, :previous_dossier_id, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, dossier); err != nil {
		return fmt.Errorf("create dossier: %w", err)
	}
	return nil
}

// GetByID fetches one dossier without its documents.
func (r *DossierRepository) GetByID(ctx context.Context, id string) (*models.Dossier, error) {
	var dossier models.Dossier
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &dossier, `SELECT `+dossierColumns+` FROM dossiers WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &dossier, nil
}

// ExistsForCampaign reports whether the doctorant already submitted to the campaign.
func (r *DossierRepository) ExistsForCampaign(ctx context.Context, doctorantID, campaignID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM dossiers WHERE doctorant_id = $1 AND campagne_id = $2)`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &exists, query, doctorantID, campaignID); err != nil {
		return false, fmt.Errorf("check dossier existence: %w", err)
	}
	return exists, nil
}

// List returns dossiers matching the filter, most recent submission first.
func (r *DossierRepository) List(ctx context.Context, filter models.DossierFilter) ([]models.Dossier, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + dossierColumns + ` FROM dossiers`)

	conditions := make([]string, 0, 4)
	if filter.DoctorantID != "" {
		args = append(args, filter.DoctorantID)
		conditions = append(conditions, fmt.Sprintf("doctorant_id = $%d", len(args)))
	}
	if filter.DirecteurID != "" {
		args = append(args, filter.DirecteurID)
		conditions = append(conditions, fmt.Sprintf("directeur_id = $%d", len(args)))
	}
	if filter.CampaignID != "" {
		args = append(args, filter.CampaignID)
		conditions = append(conditions, fmt.Sprintf("campagne_id = $%d", len(args)))
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

	var dossiers []models.Dossier
	if err := r.db.SelectContext(ctx, &dossiers, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	return dossiers, nil
}

// Latest returns the doctorant's most recent dossier.
func (r *DossierRepository) Latest(ctx context.Context, doctorantID string) (*models.Dossier, error) {
	var dossier models.Dossier
	const query = `SELECT ` + dossierColumns + ` FROM dossiers WHERE doctorant_id = $1 ORDER BY date_soumission DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &dossier, query, doctorantID); err != nil {
		return nil, err
	}
	return &dossier, nil
}

// InitialInscription returns the earliest inscription date of a doctorant and whether any of
// their dossiers carries a derogation, or nil when the doctorant never enrolled.
func (r *DossierRepository) InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error) {
	const query = `SELECT doctorant_id, MIN(date_inscription_initiale) AS date_inscription_initiale, BOOL_OR(derogation) AS derogation
	FROM dossiers WHERE doctorant_id = $1 GROUP BY doctorant_id`
	var initial models.InitialInscription
	if err := r.db.GetContext(ctx, &initial, query, doctorantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("initial inscription: %w", err)
	}
	return &initial, nil
}

// Transition applies a guarded status change.
func (r *DossierRepository) Transition(ctx context.Context, t StatusTransition) error {
	return applyTransition(ctx, database.Executor(ctx, r.db), "dossiers", t)
}

// Delete removes a dossier; documents cascade in the schema.
func (r *DossierRepository) Delete(ctx context.Context, id string) error {
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM dossiers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dossier: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check dossier delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

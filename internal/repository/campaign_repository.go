package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctorat-api/internal/models"
)

const campaignColumns = `id, nom, date_ouverture, date_fermeture, active, created_at, updated_at`

// CampaignRepository persists admission campaigns.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs the repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	const query = `INSERT INTO campagnes (` + campaignColumns + `)
	VALUES (:id, :nom, :date_ouverture, :date_fermeture, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, campaign); err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update overwrites the mutable campaign columns.
func (r *CampaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	campaign.UpdatedAt = time.Now().UTC()
	const query = `UPDATE campagnes SET nom = :nom, date_ouverture = :date_ouverture, date_fermeture = :date_fermeture,
	active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, campaign); err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return nil
}

// GetByID fetches one campaign.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.GetContext(ctx, &campaign, `SELECT `+campaignColumns+` FROM campagnes WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// List returns every campaign, most recent opening first.
func (r *CampaignRepository) List(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.SelectContext(ctx, &campaigns, `SELECT `+campaignColumns+` FROM campagnes ORDER BY date_ouverture DESC`); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, nil
}

// ListActive returns campaigns flagged active.
func (r *CampaignRepository) ListActive(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.SelectContext(ctx, &campaigns, `SELECT `+campaignColumns+` FROM campagnes WHERE active = TRUE ORDER BY date_ouverture DESC`); err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return campaigns, nil
}

// NameTaken reports whether another campaign already uses nom.
func (r *CampaignRepository) NameTaken(ctx context.Context, nom, excludeID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM campagnes WHERE LOWER(nom) = LOWER($1) AND id <> $2)`
	if err := r.db.GetContext(ctx, &exists, query, nom, excludeID); err != nil {
		return false, fmt.Errorf("check campaign name: %w", err)
	}
	return exists, nil
}

// CountDossiers returns how many dossiers the campaign owns.
func (r *CampaignRepository) CountDossiers(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dossiers WHERE campagne_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count campaign dossiers: %w", err)
	}
	return count, nil
}

// Delete removes a campaign that owns no dossier. A concurrent submission makes it a no-op.
func (r *CampaignRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM campagnes c WHERE c.id = $1 AND NOT EXISTS (SELECT 1 FROM dossiers d WHERE d.campagne_id = c.id)`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check campaign delete rows: %w", err)
	}
	return rows > 0, nil
}

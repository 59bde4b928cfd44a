package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
)

const documentColumns = `id, dossier_id, nom_original, chemin, type, mime_type, taille, date_upload`

// DocumentRepository persists dossier documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.DateUpload.IsZero() {
		doc.DateUpload = time.Now().UTC()
	}
	const query = `INSERT INTO documents (` + documentColumns + `)
	VALUES (:id, :dossier_id, :nom_original, :chemin, :type, :mime_type, :taille, :date_upload)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches one document.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByDossier returns documents in upload order.
func (r *DocumentRepository) ListByDossier(ctx context.Context, dossierID string) ([]models.Document, error) {
	var docs []models.Document
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE dossier_id = $1 ORDER BY date_upload, id`
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &docs, query, dossierID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CountByPath returns how many document rows point at the stored file, excluding one dossier.
func (r *DocumentRepository) CountByPath(ctx context.Context, chemin, excludeDossierID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM documents WHERE chemin = $1 AND dossier_id <> $2`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &count, query, chemin, excludeDossierID); err != nil {
		return 0, fmt.Errorf("count document references: %w", err)
	}
	return count, nil
}

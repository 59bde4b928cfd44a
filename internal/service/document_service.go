package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/storage"
)

// DocumentUpload is one incoming file.
type DocumentUpload struct {
	Type     models.DocumentType
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// StoredUpload is an upload persisted to file storage but not yet recorded.
type StoredUpload struct {
	Type models.DocumentType
	File models.StoredFile
}

type fileStore interface {
	Store(ownerID, originalName string, r io.Reader) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByDossier(ctx context.Context, dossierID string) ([]models.Document, error)
	CountByPath(ctx context.Context, chemin, excludeDossierID string) (int, error)
}

// DocumentPolicy bounds accepted uploads.
type DocumentPolicy struct {
	MaxSize      int64
	AllowedMIMEs []string
}

// DocumentService manages typed document sets attached to dossiers and demandes.
type DocumentService struct {
	docs   documentStore
	files  fileStore
	signer *storage.SignedURLSigner
	policy DocumentPolicy
	logger *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(docs documentStore, files fileStore, signer *storage.SignedURLSigner, policy DocumentPolicy, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{docs: docs, files: files, signer: signer, policy: policy, logger: logger}
}

// Store validates and writes one upload. Empty uploads return nil.
func (s *DocumentService) Store(ownerID string, upload DocumentUpload) (*models.StoredFile, error) {
	if upload.Content == nil || upload.Size == 0 {
		return nil, nil
	}
	if strings.Contains(upload.Filename, "..") {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("invalid file name %q", upload.Filename))
	}
	if s.policy.MaxSize > 0 && upload.Size > s.policy.MaxSize {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidArgument, "file exceeds maximum size"),
			map[string]interface{}{"file": upload.Filename, "maxBytes": s.policy.MaxSize})
	}

	detected, err := mimetype.DetectReader(upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "unreadable file")
	}
	if !s.allowed(detected) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidArgument, "file type not allowed"),
			map[string]interface{}{"file": upload.Filename, "mimeType": detected.String()})
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewind upload")
	}

	path, err := s.files.Store(ownerID, upload.Filename, upload.Content)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return nil, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("invalid file name %q", upload.Filename))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	mimeType, _, _ := strings.Cut(detected.String(), ";")
	return &models.StoredFile{
		NomOriginal: upload.Filename,
		Chemin:      path,
		MimeType:    mimeType,
		Taille:      upload.Size,
	}, nil
}

// StoreAll stores every non-empty upload; on failure, files already written are removed.
func (s *DocumentService) StoreAll(ownerID string, uploads []DocumentUpload) ([]StoredUpload, error) {
	stored := make([]StoredUpload, 0, len(uploads))
	for _, upload := range uploads {
		file, err := s.Store(ownerID, upload)
		if err != nil {
			s.Discard(stored...)
			return nil, err
		}
		if file == nil {
			continue
		}
		stored = append(stored, StoredUpload{Type: upload.Type, File: *file})
	}
	return stored, nil
}

// Discard removes stored files whose database rows were never committed.
func (s *DocumentService) Discard(stored ...StoredUpload) {
	for _, upload := range stored {
		s.deleteFile(upload.File.Chemin)
	}
}

// AttachToDossier records fresh uploads and, on re-enrollment, copies forward every previous
// document whose type was not supplied again. Copies share the stored file.
func (s *DocumentService) AttachToDossier(ctx context.Context, dossierID string, fresh []StoredUpload, previous []models.Document) ([]models.Document, error) {
	supplied := make(map[models.DocumentType]struct{}, len(fresh))
	for _, upload := range fresh {
		supplied[upload.Type] = struct{}{}
	}

	now := time.Now().UTC()
	out := make([]models.Document, 0, len(fresh)+len(previous))
	for _, prev := range previous {
		if _, replaced := supplied[prev.Type]; replaced {
			continue
		}
		out = append(out, models.Document{
			DossierID:   dossierID,
			NomOriginal: prev.NomOriginal,
			Chemin:      prev.Chemin,
			Type:        prev.Type,
			MimeType:    prev.MimeType,
			Taille:      prev.Taille,
			DateUpload:  now,
		})
	}
	for _, upload := range fresh {
		out = append(out, models.Document{
			DossierID:   dossierID,
			NomOriginal: upload.File.NomOriginal,
			Chemin:      upload.File.Chemin,
			Type:        upload.Type,
			MimeType:    upload.File.MimeType,
			Taille:      upload.File.Taille,
			DateUpload:  now,
		})
	}

	for i := range out {
		if err := s.docs.Create(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListForDossier returns a dossier's documents.
func (s *DocumentService) ListForDossier(ctx context.Context, dossierID string) ([]models.Document, error) {
	docs, err := s.docs.ListByDossier(ctx, dossierID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// Get returns one document.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// ReleaseDossierFiles deletes the stored files of a removed dossier that no other dossier references.
// Failures are logged, never returned.
func (s *DocumentService) ReleaseDossierFiles(ctx context.Context, dossierID string, docs []models.Document) {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if _, done := seen[doc.Chemin]; done {
			continue
		}
		seen[doc.Chemin] = struct{}{}
		refs, err := s.docs.CountByPath(ctx, doc.Chemin, dossierID)
		if err != nil {
			s.logger.Warn("skip file cleanup", zap.String("dossier_id", dossierID), zap.String("path", doc.Chemin), zap.Error(err))
			continue
		}
		if refs > 0 {
			continue
		}
		s.deleteFile(doc.Chemin)
	}
}

// DownloadURL signs a short-lived token for a document.
func (s *DocumentService) DownloadURL(doc *models.Document) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "signed downloads are not configured")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.Chemin)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expiresAt, nil
}

// OpenSigned verifies token for document id and opens the stored file.
func (s *DocumentService) OpenSigned(ctx context.Context, id, token string) (*models.Document, *os.File, error) {
	if s.signer == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "signed downloads are not configured")
	}
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, err.Error())
	}
	if grant.ResourceID != id {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match document")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.files.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "stored file missing")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return doc, file, nil
}

func (s *DocumentService) deleteFile(path string) {
	if path == "" {
		return
	}
	if err := s.files.Delete(path); err != nil {
		s.logger.Warn("failed to delete stored file", zap.String("path", path), zap.Error(err))
	}
}

func (s *DocumentService) allowed(detected *mimetype.MIME) bool {
	if len(s.policy.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.policy.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

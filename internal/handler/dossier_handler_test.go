package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

type dossierServiceStub struct {
	submitReq     dto.SubmitDossierRequest
	submitUploads []service.DocumentUpload
	submitContent map[models.DocumentType]string
	submitErr     error

	directeurID string
	directeur   dto.DirecteurValidationRequest
	admin       dto.AdminValidationRequest
	validateErr error

	initial   *models.InitialInscription
	token     string
	expiresAt time.Time
}

func (s *dossierServiceStub) Submit(ctx context.Context, doctorantID string, req dto.SubmitDossierRequest, uploads []service.DocumentUpload) (*models.Dossier, error) {
	s.submitReq = req
	s.submitUploads = uploads
	s.submitContent = map[models.DocumentType]string{}
	for _, u := range uploads {
		data := make([]byte, u.Size)
		_, _ = u.Content.Read(data)
		s.submitContent[u.Type] = string(data)
	}
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &models.Dossier{ID: "d-1", DoctorantID: doctorantID, CampaignID: req.CampaignID, Status: models.DossierEnAttenteDirecteur}, nil
}

func (s *dossierServiceStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Dossier, error) {
	if actor.UserID != "doc-1" {
		return nil, appErrors.ErrForbidden
	}
	return &models.Dossier{ID: id, DoctorantID: "doc-1"}, nil
}

func (s *dossierServiceStub) ListByDoctorant(ctx context.Context, doctorantID string) ([]models.Dossier, error) {
	return []models.Dossier{{ID: "d-2", DoctorantID: doctorantID}, {ID: "d-1", DoctorantID: doctorantID}}, nil
}

func (s *dossierServiceStub) PendingForDirecteur(ctx context.Context, directeurID string) ([]models.Dossier, error) {
	return []models.Dossier{{ID: "d-1", DirecteurID: directeurID}}, nil
}

func (s *dossierServiceStub) PendingForAdmin(ctx context.Context) ([]models.Dossier, error) {
	return nil, nil
}

func (s *dossierServiceStub) ListByCampaign(ctx context.Context, campaignID string) ([]models.Dossier, error) {
	return []models.Dossier{{ID: "d-1", CampaignID: campaignID}}, nil
}

func (s *dossierServiceStub) ValidateByDirecteur(ctx context.Context, id, directeurID string, req dto.DirecteurValidationRequest) (*models.Dossier, error) {
	s.directeurID = directeurID
	s.directeur = req
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return &models.Dossier{ID: id, Status: models.DossierEnAttenteAdmin}, nil
}

func (s *dossierServiceStub) ValidateByAdmin(ctx context.Context, id string, req dto.AdminValidationRequest) (*models.Dossier, error) {
	s.admin = req
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return &models.Dossier{ID: id, Status: models.DossierValide, Derogation: req.GrantDerogation}, nil
}

func (s *dossierServiceStub) Delete(ctx context.Context, id string) error {
	return nil
}

func (s *dossierServiceStub) PreviousDossier(ctx context.Context, doctorantID string) (*models.Dossier, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no previous dossier")
}

func (s *dossierServiceStub) ReenrollmentStatus(ctx context.Context, doctorantID string) (*models.ReenrollmentStatus, error) {
	return &models.ReenrollmentStatus{Eligible: true, ElapsedYears: 1}, nil
}

func (s *dossierServiceStub) InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error) {
	return s.initial, nil
}

func (s *dossierServiceStub) DocumentURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, time.Time, error) {
	return s.token, s.expiresAt, nil
}

type signedDocumentsStub struct {
	doc  *models.Document
	path string
	err  error
}

func (s *signedDocumentsStub) OpenSigned(ctx context.Context, id, token string) (*models.Document, *os.File, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	if token != "good" {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	return s.doc, f, nil
}

func TestDossierHandlerSubmitCollectsTypedUploads(t *testing.T) {
	svc := &dossierServiceStub{}
	h := NewDossierHandler(svc, nil, "/api/v1")

	c, w := newMultipartContext(t, "/api/v1/dossiers",
		map[string]string{"campagneId": "camp-1", "sujet": "Graphes", "directeurId": "dir-1"},
		map[string][]byte{"diplome": []byte("diploma"), "cv": []byte("resume")})
	asUser(c, "doc-1", models.RoleDoctorant)

	h.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "camp-1", svc.submitReq.CampaignID)
	assert.Equal(t, "Graphes", svc.submitReq.Sujet)
	require.Len(t, svc.submitUploads, 2)
	assert.Equal(t, "diploma", svc.submitContent[models.DocumentDiplome])
	assert.Equal(t, "resume", svc.submitContent[models.DocumentCV])
}

func TestDossierHandlerSubmitMapsDomainErrors(t *testing.T) {
	svc := &dossierServiceStub{submitErr: appErrors.ErrDuplicateSubmission}
	h := NewDossierHandler(svc, nil, "/api/v1")

	c, w := newMultipartContext(t, "/api/v1/dossiers", map[string]string{"campagneId": "camp-1"}, nil)
	asUser(c, "doc-1", models.RoleDoctorant)

	h.Submit(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_SUBMISSION", decode(t, w).Error.Code)
}

func TestDossierHandlerRequiresActor(t *testing.T) {
	h := NewDossierHandler(&dossierServiceStub{}, nil, "/api/v1")
	c, w := newTestContext(http.MethodGet, "/api/v1/dossiers/me", nil)

	h.Mine(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDossierHandlerGetForbiddenForOtherDoctorant(t *testing.T) {
	h := NewDossierHandler(&dossierServiceStub{}, nil, "/api/v1")
	c, w := newTestContext(http.MethodGet, "/api/v1/dossiers/d-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "d-1"}}
	asUser(c, "doc-2", models.RoleDoctorant)

	h.Get(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDossierHandlerValidateDirecteurUsesCaller(t *testing.T) {
	svc := &dossierServiceStub{}
	h := NewDossierHandler(svc, nil, "/api/v1")
	c, w := newTestContext(http.MethodPost, "/api/v1/dossiers/d-1/validation-directeur", []byte(`{"approve":true,"commentaire":"ok"}`))
	c.Params = gin.Params{{Key: "id", Value: "d-1"}}
	asUser(c, "dir-1", models.RoleDirecteur)

	h.ValidateDirecteur(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dir-1", svc.directeurID)
	require.NotNil(t, svc.directeur.Approve)
	assert.True(t, *svc.directeur.Approve)
	assert.Equal(t, "ok", svc.directeur.Commentaire)
}

func TestDossierHandlerValidateAdminConflict(t *testing.T) {
	svc := &dossierServiceStub{validateErr: appErrors.Clone(appErrors.ErrInvalidState, "dossier is not awaiting the administration")}
	h := NewDossierHandler(svc, nil, "/api/v1")
	c, w := newTestContext(http.MethodPost, "/api/v1/dossiers/d-1/validation-admin", []byte(`{"approve":true,"grantDerogation":true}`))
	c.Params = gin.Params{{Key: "id", Value: "d-1"}}
	asUser(c, "admin-1", models.RoleAdmin)

	h.ValidateAdmin(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, svc.admin.GrantDerogation)
	assert.Equal(t, "INVALID_STATE", decode(t, w).Error.Code)
}

func TestDossierHandlerMalformedVerdict(t *testing.T) {
	h := NewDossierHandler(&dossierServiceStub{}, nil, "/api/v1")
	c, w := newTestContext(http.MethodPost, "/api/v1/dossiers/d-1/validation-admin", []byte(`{"approve":`))
	c.Params = gin.Params{{Key: "id", Value: "d-1"}}

	h.ValidateAdmin(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestDossierHandlerInitialDateNotFound(t *testing.T) {
	h := NewDossierHandler(&dossierServiceStub{}, nil, "/api/v1")
	c, w := newTestContext(http.MethodGet, "/api/v1/dossiers/doctorants/doc-9/initial-date", nil)
	c.Params = gin.Params{{Key: "doctorantId", Value: "doc-9"}}

	h.InitialDate(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDossierHandlerPreviousNotFound(t *testing.T) {
	h := NewDossierHandler(&dossierServiceStub{}, nil, "/api/v1")
	c, w := newTestContext(http.MethodGet, "/api/v1/dossiers/previous", nil)
	asUser(c, "doc-1", models.RoleDoctorant)

	h.Previous(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDossierHandlerDocumentURL(t *testing.T) {
	expires := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	svc := &dossierServiceStub{token: "abc+def", expiresAt: expires}
	h := NewDossierHandler(svc, nil, "/api/v1")
	c, w := newTestContext(http.MethodGet, "/api/v1/documents/doc-7/url", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-7"}}
	asUser(c, "doc-1", models.RoleDoctorant)

	h.DocumentURL(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := string(decode(t, w).Data)
	assert.Contains(t, body, `/api/v1/documents/doc-7/download?token=abc%2Bdef`)
	assert.Contains(t, body, "2025-09-01T12:00:00Z")
}

func TestDossierHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stored.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))
	docs := &signedDocumentsStub{
		doc:  &models.Document{ID: "doc-7", NomOriginal: "diplome.pdf", MimeType: "application/pdf"},
		path: path,
	}
	h := NewDossierHandler(&dossierServiceStub{}, docs, "/api/v1")

	c, w := newTestContext(http.MethodGet, "/api/v1/documents/doc-7/download?token=good", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-7"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(w.Header().Get("Content-Disposition"), "diplome.pdf"))
	assert.Equal(t, "%PDF-1.4 body", string(readAll(t, w.Body)))

	c, w = newTestContext(http.MethodGet, "/api/v1/documents/doc-7/download?token=bad", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-7"}}
	h.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

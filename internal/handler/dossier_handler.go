package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/response"
)

type dossierService interface {
	Submit(ctx context.Context, doctorantID string, req dto.SubmitDossierRequest, uploads []service.DocumentUpload) (*models.Dossier, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Dossier, error)
	ListByDoctorant(ctx context.Context, doctorantID string) ([]models.Dossier, error)
	PendingForDirecteur(ctx context.Context, directeurID string) ([]models.Dossier, error)
	PendingForAdmin(ctx context.Context) ([]models.Dossier, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]models.Dossier, error)
	ValidateByDirecteur(ctx context.Context, id, directeurID string, req dto.DirecteurValidationRequest) (*models.Dossier, error)
	ValidateByAdmin(ctx context.Context, id string, req dto.AdminValidationRequest) (*models.Dossier, error)
	Delete(ctx context.Context, id string) error
	PreviousDossier(ctx context.Context, doctorantID string) (*models.Dossier, error)
	ReenrollmentStatus(ctx context.Context, doctorantID string) (*models.ReenrollmentStatus, error)
	InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error)
	DocumentURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, time.Time, error)
}

type signedDocuments interface {
	OpenSigned(ctx context.Context, id, token string) (*models.Document, *os.File, error)
}

// dossierUploadFields maps multipart fields to document types.
var dossierUploadFields = map[string]models.DocumentType{
	"diplome":          models.DocumentDiplome,
	"cv":               models.DocumentCV,
	"lettreMotivation": models.DocumentLettreMotivation,
	"attestation":      models.DocumentAttestation,
	"autre":            models.DocumentAutre,
}

// DossierHandler exposes enrollment dossier endpoints.
type DossierHandler struct {
	service   dossierService
	documents signedDocuments
	apiPrefix string
}

// NewDossierHandler builds the handler; apiPrefix is used to build download links.
func NewDossierHandler(service dossierService, documents signedDocuments, apiPrefix string) *DossierHandler {
	return &DossierHandler{service: service, documents: documents, apiPrefix: apiPrefix}
}

// Submit godoc
// @Summary Submit an enrollment dossier
// @Tags Dossiers
// @Accept multipart/form-data
// @Produce json
// @Param campagneId formData string true "Campaign ID"
// @Param sujet formData string false "Thesis subject"
// @Param directeurId formData string false "Director user ID"
// @Param collaboration formData string false "Collaboration"
// @Param reinscription formData bool false "Re-enrollment"
// @Param previousDossierId formData string false "Previous dossier for a re-enrollment"
// @Param diplome formData file false "Diploma"
// @Param cv formData file false "CV"
// @Param lettreMotivation formData file false "Motivation letter"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /dossiers [post]
func (h *DossierHandler) Submit(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.SubmitDossierRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	form, _ := c.MultipartForm()
	files := &uploads{}
	defer files.Close()
	docs, err := files.collect(form, dossierUploadFields)
	if err != nil {
		response.Error(c, err)
		return
	}
	dossier, err := h.service.Submit(c.Request.Context(), actor.UserID, req, docs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dossier)
}

// Mine godoc
// @Summary List the caller's dossiers, most recent first
// @Tags Dossiers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dossiers/me [get]
func (h *DossierHandler) Mine(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	items, err := h.service.ListByDoctorant(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a dossier with its documents
// @Tags Dossiers
// @Produce json
// @Param id path string true "Dossier ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dossiers/{id} [get]
func (h *DossierHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	dossier, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dossier, nil)
}

// PendingDirecteur godoc
// @Summary Dossiers awaiting the caller's decision as director
// @Tags Dossiers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dossiers/directeur/pending [get]
func (h *DossierHandler) PendingDirecteur(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	items, err := h.service.PendingForDirecteur(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// PendingAdmin godoc
// @Summary Dossiers awaiting the administration
// @Tags Dossiers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dossiers/admin/pending [get]
func (h *DossierHandler) PendingAdmin(c *gin.Context) {
	items, err := h.service.PendingForAdmin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ByCampaign godoc
// @Summary Dossiers of a campaign
// @Tags Dossiers
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} response.Envelope
// @Router /campagnes/{id}/dossiers [get]
func (h *DossierHandler) ByCampaign(c *gin.Context) {
	items, err := h.service.ListByCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ValidateDirecteur godoc
// @Summary Director verdict on a dossier
// @Tags Dossiers
// @Accept json
// @Produce json
// @Param id path string true "Dossier ID"
// @Param payload body dto.DirecteurValidationRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /dossiers/{id}/validation-directeur [post]
func (h *DossierHandler) ValidateDirecteur(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.DirecteurValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	dossier, err := h.service.ValidateByDirecteur(c.Request.Context(), c.Param("id"), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dossier, nil)
}

// ValidateAdmin godoc
// @Summary Administration verdict on a dossier
// @Tags Dossiers
// @Accept json
// @Produce json
// @Param id path string true "Dossier ID"
// @Param payload body dto.AdminValidationRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /dossiers/{id}/validation-admin [post]
func (h *DossierHandler) ValidateAdmin(c *gin.Context) {
	var req dto.AdminValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	dossier, err := h.service.ValidateByAdmin(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dossier, nil)
}

// Delete godoc
// @Summary Delete a dossier
// @Tags Dossiers
// @Param id path string true "Dossier ID"
// @Success 204
// @Router /dossiers/{id} [delete]
func (h *DossierHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Previous godoc
// @Summary Caller's latest dossier, used to prefill a re-enrollment
// @Tags Dossiers
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /dossiers/previous [get]
func (h *DossierHandler) Previous(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	dossier, err := h.service.PreviousDossier(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dossier, nil)
}

// ReenrollmentStatus godoc
// @Summary Whether the caller may re-enroll now
// @Tags Dossiers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dossiers/reinscription/status [get]
func (h *DossierHandler) ReenrollmentStatus(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	status, err := h.service.ReenrollmentStatus(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// InitialDate godoc
// @Summary First inscription date of a doctorant
// @Tags Dossiers
// @Produce json
// @Param doctorantId path string true "Doctorant ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /dossiers/doctorants/{doctorantId}/initial-date [get]
func (h *DossierHandler) InitialDate(c *gin.Context) {
	initial, err := h.service.InitialInscription(c.Request.Context(), c.Param("doctorantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if initial == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no inscription for doctorant"))
		return
	}
	response.JSON(c, http.StatusOK, initial, nil)
}

// DocumentURL godoc
// @Summary Signed download link for a dossier document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/url [get]
func (h *DossierHandler) DocumentURL(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	id := c.Param("id")
	token, expiresAt, err := h.service.DocumentURL(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	link := fmt.Sprintf("%s/documents/%s/download?token=%s", h.apiPrefix, url.PathEscape(id), url.QueryEscape(token))
	response.JSON(c, http.StatusOK, dto.DocumentURLResponse{URL: link, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil)
}

// Download godoc
// @Summary Download a document with a signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DossierHandler) Download(c *gin.Context) {
	doc, file, err := h.documents.OpenSigned(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	size := doc.Taille
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, contentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.NomOriginal),
	})
}

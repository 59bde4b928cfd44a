package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/response"
)

type demandeService interface {
	Submit(ctx context.Context, doctorantID string, req dto.SubmitDemandeRequest, manuscript *service.DocumentUpload, uploads []service.DocumentUpload) (*models.Demande, error)
	ValiderPrerequis(ctx context.Context, id string) (*models.Demande, error)
	ProposeJury(ctx context.Context, id string, req dto.ProposeJuryRequest) (*models.Demande, error)
	UploadRapport(ctx context.Context, id string, upload service.DocumentUpload, favorable bool) (*models.Rapport, *models.Demande, error)
	Autoriser(ctx context.Context, id string) (*models.Demande, error)
	Planifier(ctx context.Context, id string, req dto.PlanifierRequest) (*models.Demande, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Demande, error)
	ListByDoctorant(ctx context.Context, doctorantID string) ([]models.Demande, error)
	ListByStatus(ctx context.Context, query dto.DemandeQuery) ([]models.Demande, error)
}

var demandeUploadFields = map[string]models.DocumentType{
	"justificatifs": models.DocumentJustificatifPubli,
	"membresJury":   models.DocumentMembresJury,
}

// DemandeHandler exposes defense request endpoints.
type DemandeHandler struct {
	service demandeService
}

// NewDemandeHandler builds the handler.
func NewDemandeHandler(service demandeService) *DemandeHandler {
	return &DemandeHandler{service: service}
}

// Submit godoc
// @Summary Submit a defense request
// @Tags Demandes
// @Accept multipart/form-data
// @Produce json
// @Param nbArticlesQ1Q2 formData int true "Q1/Q2 articles"
// @Param nbConferences formData int true "Conferences"
// @Param heuresFormation formData int true "Training hours"
// @Param manuscrit formData file true "Manuscript"
// @Param justificatifs formData file false "Publication evidence"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /demandes [post]
func (h *DemandeHandler) Submit(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.SubmitDemandeRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	form, _ := c.MultipartForm()
	files := &uploads{}
	defer files.Close()

	var manuscript *service.DocumentUpload
	if form != nil && len(form.File["manuscrit"]) > 0 {
		upload, err := files.open(form.File["manuscrit"][0], models.DocumentManuscrit)
		if err != nil {
			response.Error(c, err)
			return
		}
		manuscript = &upload
	}
	docs, err := files.collect(form, demandeUploadFields)
	if err != nil {
		response.Error(c, err)
		return
	}
	demande, err := h.service.Submit(c.Request.Context(), actor.UserID, req, manuscript, docs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, demande)
}

// Mine godoc
// @Summary List the caller's defense requests
// @Tags Demandes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /demandes/me [get]
func (h *DemandeHandler) Mine(c *gin.Context) {
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

// List godoc
// @Summary List defense requests by status
// @Tags Demandes
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /demandes [get]
func (h *DemandeHandler) List(c *gin.Context) {
	statuses, err := demandeStatuses(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListByStatus(c.Request.Context(), dto.DemandeQuery{Status: statuses})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Get godoc
// @Summary Get a defense request with its jury and reports
// @Tags Demandes
// @Produce json
// @Param id path string true "Demande ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /demandes/{id} [get]
func (h *DemandeHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	demande, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demande, nil)
}

// ValiderPrerequis godoc
// @Summary Confirm the prerequisites of a defense request
// @Tags Demandes
// @Produce json
// @Param id path string true "Demande ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/prerequis/validate [post]
func (h *DemandeHandler) ValiderPrerequis(c *gin.Context) {
	demande, err := h.service.ValiderPrerequis(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demande, nil)
}

// ProposeJury godoc
// @Summary Propose the defense jury
// @Tags Demandes
// @Accept json
// @Produce json
// @Param id path string true "Demande ID"
// @Param payload body dto.ProposeJuryRequest true "Jury"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/jury [post]
func (h *DemandeHandler) ProposeJury(c *gin.Context) {
	var req dto.ProposeJuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	demande, err := h.service.ProposeJury(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demande, nil)
}

// UploadRapport godoc
// @Summary File a rapporteur report
// @Tags Demandes
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Demande ID"
// @Param rapport formData file true "Report"
// @Param favorable formData bool true "Favorable verdict"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/rapports [post]
func (h *DemandeHandler) UploadRapport(c *gin.Context) {
	fh, err := c.FormFile("rapport")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidArgument, "rapport file is required"))
		return
	}
	favorable, err := strconv.ParseBool(c.PostForm("favorable"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "favorable must be a boolean"))
		return
	}
	files := &uploads{}
	defer files.Close()
	upload, err := files.open(fh, models.DocumentRapport)
	if err != nil {
		response.Error(c, err)
		return
	}
	rapport, demande, err := h.service.UploadRapport(c.Request.Context(), c.Param("id"), upload, favorable)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"rapport": rapport, "demande": demande})
}

// Autoriser godoc
// @Summary Authorize the defense
// @Tags Demandes
// @Produce json
// @Param id path string true "Demande ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/autoriser [post]
func (h *DemandeHandler) Autoriser(c *gin.Context) {
	demande, err := h.service.Autoriser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demande, nil)
}

// Planifier godoc
// @Summary Schedule the defense
// @Tags Demandes
// @Accept json
// @Produce json
// @Param id path string true "Demande ID"
// @Param payload body dto.PlanifierRequest true "Schedule"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/planifier [post]
func (h *DemandeHandler) Planifier(c *gin.Context) {
	var req dto.PlanifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	demande, err := h.service.Planifier(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demande, nil)
}

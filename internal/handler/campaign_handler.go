package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/response"
)

type campaignService interface {
	Create(ctx context.Context, req dto.UpsertCampaignRequest) (*models.CampaignView, error)
	Update(ctx context.Context, id string, req dto.UpsertCampaignRequest) (*models.CampaignView, error)
	Get(ctx context.Context, id string) (*models.CampaignView, error)
	List(ctx context.Context) ([]models.CampaignView, error)
	ListActive(ctx context.Context) ([]models.CampaignView, error)
	Current(ctx context.Context) (*models.CampaignView, error)
	Status(ctx context.Context, id string) (models.CampaignStatus, error)
	Delete(ctx context.Context, id string) error
	ExportDossiers(ctx context.Context, id string, format models.ExportFormat) (string, []byte, error)
}

// CampaignHandler exposes campaign endpoints.
type CampaignHandler struct {
	service campaignService
}

// NewCampaignHandler builds the handler.
func NewCampaignHandler(service campaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// List godoc
// @Summary List campaigns
// @Tags Campagnes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /campagnes [get]
func (h *CampaignHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListActive godoc
// @Summary List active campaigns
// @Tags Campagnes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /campagnes/active [get]
func (h *CampaignHandler) ListActive(c *gin.Context) {
	items, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Current godoc
// @Summary Campaign currently accepting submissions
// @Tags Campagnes
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /campagnes/current [get]
func (h *CampaignHandler) Current(c *gin.Context) {
	item, err := h.service.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Get godoc
// @Summary Get a campaign
// @Tags Campagnes
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} response.Envelope
// @Router /campagnes/{id} [get]
func (h *CampaignHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Status godoc
// @Summary Derived campaign status
// @Tags Campagnes
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} response.Envelope
// @Router /campagnes/{id}/status [get]
func (h *CampaignHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": status}, nil)
}

// Create godoc
// @Summary Create a campaign
// @Tags Campagnes
// @Accept json
// @Produce json
// @Param payload body dto.UpsertCampaignRequest true "Campaign"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /campagnes [post]
func (h *CampaignHandler) Create(c *gin.Context) {
	var req dto.UpsertCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a campaign
// @Tags Campagnes
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param payload body dto.UpsertCampaignRequest true "Campaign"
// @Success 200 {object} response.Envelope
// @Router /campagnes/{id} [put]
func (h *CampaignHandler) Update(c *gin.Context) {
	var req dto.UpsertCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a campaign without dossiers
// @Tags Campagnes
// @Param id path string true "Campaign ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /campagnes/{id} [delete]
func (h *CampaignHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export the campaign's dossiers as CSV or PDF
// @Tags Campagnes
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Campaign ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /campagnes/{id}/export [get]
func (h *CampaignHandler) Export(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(models.ExportCSV)))))
	name, data, err := h.service.ExportDossiers(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, name, format.ContentType(), data)
}

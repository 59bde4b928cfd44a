package handler

import (
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/middleware"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
	"github.com/noah-isme/doctorat-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireActor writes 401 and returns nil when the request carries no claims.
func requireActor(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

// uploads opens multipart files as service uploads and closes them once the request is served.
type uploads struct {
	files []multipart.File
}

func (u *uploads) open(fh *multipart.FileHeader, kind models.DocumentType) (service.DocumentUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.DocumentUpload{}, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, "unreadable upload")
	}
	u.files = append(u.files, f)
	return service.DocumentUpload{Type: kind, Filename: fh.Filename, Size: fh.Size, Content: f}, nil
}

// collect opens every file sent under each form field, typed by the field's document type.
func (u *uploads) collect(form *multipart.Form, fields map[string]models.DocumentType) ([]service.DocumentUpload, error) {
	if form == nil {
		return nil, nil
	}
	var out []service.DocumentUpload
	for field, kind := range fields {
		for _, fh := range form.File[field] {
			upload, err := u.open(fh, kind)
			if err != nil {
				return nil, err
			}
			out = append(out, upload)
		}
	}
	return out, nil
}

func (u *uploads) Close() {
	for _, f := range u.files {
		_ = f.Close()
	}
}

func demandeStatuses(c *gin.Context) ([]models.DemandeStatus, error) {
	var out []models.DemandeStatus
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.DemandeStatus(part)
			switch status {
			case models.DemandeEnAttentePrerequis, models.DemandeEnAttenteJury, models.DemandeEnAttenteRapports,
				models.DemandeAutorisee, models.DemandePlanifiee:
				out = append(out, status)
			default:
				return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "unknown status "+part)
			}
		}
	}
	return out, nil
}

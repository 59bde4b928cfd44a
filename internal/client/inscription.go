package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// InscriptionClient looks up initial inscription dates from a remote enrollment service.
type InscriptionClient struct {
	base
	prefix string
}

// NewInscriptionClient builds a client; prefix is the remote API prefix such as /api/v1.
func NewInscriptionClient(baseURL, prefix string, timeout time.Duration) *InscriptionClient {
	return &InscriptionClient{base: newBase("inscription", baseURL, timeout), prefix: prefix}
}

// InitialInscription returns nil when the doctorant has no inscription.
func (c *InscriptionClient) InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error) {
	var envelope struct {
		Data *models.InitialInscription `json:"data"`
	}
	path := c.prefix + "/dossiers/doctorants/" + url.PathEscape(doctorantID) + "/initial-date"
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		var status *statusError
		if errors.As(err, &status) && status.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, appErrors.Upstream(err, "inscription service")
	}
	return envelope.Data, nil
}

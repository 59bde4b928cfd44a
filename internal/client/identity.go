package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

var (
	// ErrUserNotFound is returned when the identity service has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleMismatch is returned when the user exists with another role.
	ErrRoleMismatch = errors.New("user role mismatch")
)

// IdentityClient resolves users from the external user service.
type IdentityClient struct {
	base
}

// NewIdentityClient builds a client for baseURL.
func NewIdentityClient(baseURL string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{base: newBase("user", baseURL, timeout)}
}

type userPayload struct {
	ID       json.RawMessage `json:"id"`
	Email    string          `json:"email"`
	Nom      string          `json:"nom"`
	Prenom   string          `json:"prenom"`
	FullName string          `json:"fullName"`
	Role     string          `json:"role"`
}

type userEnvelope struct {
	userPayload
	Data *userPayload `json:"data"`
}

// ResolveUser fetches a user by id.
func (c *IdentityClient) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	var envelope userEnvelope
	err := c.getJSON(ctx, "/api/users/id/"+url.PathEscape(id), &envelope)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.Status == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, appErrors.Upstream(err, "user service")
	}
	payload := envelope.userPayload
	if envelope.Data != nil {
		payload = *envelope.Data
	}
	return payload.toUser(id), nil
}

// ValidateRole resolves id and checks it holds role.
func (c *IdentityClient) ValidateRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	user, err := c.ResolveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != role {
		return user, fmt.Errorf("%w: %s is %s", ErrRoleMismatch, id, user.Role)
	}
	return user, nil
}

func (p userPayload) toUser(fallbackID string) *models.User {
	id := strings.Trim(string(p.ID), `"`)
	if id == "" || id == "null" {
		id = fallbackID
	}
	fullName := strings.TrimSpace(p.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(p.Prenom + " " + p.Nom)
	}
	return &models.User{
		ID:       id,
		Email:    p.Email,
		FullName: fullName,
		Role:     models.NormalizeRole(p.Role),
	}
}

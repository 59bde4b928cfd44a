package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, s.err
}

func newRouter(v TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(service.NewMetricsService()))
	r.GET("/secure", JWT(v), RequireRoles(roles...), func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user": claims.(*models.JWTClaims).UserID})
	})
	return r
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := newRouter(stubValidator{}, models.RoleAdmin)

	for _, header := range []string{"", "Token good", "Bearer ", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTAndRolesAllowMatchingToken(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleDirecteur, Roles: []models.UserRole{models.RoleDirecteur}}
	r := newRouter(stubValidator{claims: claims}, models.RoleAdmin, models.RoleDirecteur)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1"}`, w.Body.String())
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleDoctorant, Roles: []models.UserRole{models.RoleDoctorant}}
	r := newRouter(stubValidator{claims: claims}, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJWTSurfacesValidatorError(t *testing.T) {
	r := newRouter(stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestJWTForwardsAuthorizationUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.c","role":"ADMIN"}`))
	}))
	defer upstream.Close()
	identity := client.NewIdentityClient(upstream.URL, time.Second)

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	r := gin.New()
	r.GET("/secure", JWT(stubValidator{claims: claims}), func(c *gin.Context) {
		user, err := identity.ResolveUser(c.Request.Context(), "u1")
		if err != nil {
			c.Status(http.StatusBadGateway)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": user.Email})
	})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer good", seen)
}

func TestMetricsLabelsRouteTemplateAndRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleDirecteur}
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/dossiers/:id", JWT(stubValidator{claims: claims}), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/dossiers/d-42", "/health", "/documents/x/download?token=secret"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer good")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",role="directeur",route="/dossiers/:id",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.NotContains(t, body, "d-42")
	assert.NotContains(t, body, "secret")
	assert.NotContains(t, body, `route="/health"`)
}

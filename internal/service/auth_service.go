package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// AuthConfig defines how access tokens are verified.
type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthService verifies access tokens issued by the identity service.
type AuthService struct {
	config AuthConfig
	logger *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(config AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{config: config, logger: logger}
}

// ValidateToken parses an HMAC-signed token and normalizes its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token expired")
		}
		s.logger.Debug("rejected access token", zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return NormalizeClaims(claims)
}

// NormalizeClaims maps the claim shapes used across identity providers onto JWTClaims.
//
// Roles come from the first present of: "roles" (list), "role" (string), "authorities"
// (list of strings or {"authority": ...} objects). Each is upper-cased and stripped of a
// ROLE_ prefix. The user id comes from "userId", then "user_id", then "sub".
func NormalizeClaims(claims jwt.MapClaims) (*models.JWTClaims, error) {
	userID := firstClaimString(claims, "userId", "user_id", "sub")
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}

	var raw []string
	switch {
	case len(claimList(claims["roles"])) > 0:
		raw = claimList(claims["roles"])
	case claimString(claims["role"]) != "":
		raw = []string{claimString(claims["role"])}
	default:
		raw = claimList(claims["authorities"])
	}

	roles := make([]models.UserRole, 0, len(raw))
	seen := make(map[models.UserRole]struct{}, len(raw))
	for _, r := range raw {
		role := models.NormalizeRole(r)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no role")
	}

	out := &models.JWTClaims{
		UserID:   userID,
		Roles:    roles,
		Role:     primaryRole(roles),
		Email:    claimString(claims["email"]),
		FullName: firstClaimString(claims, "fullName", "name"),
	}
	if out.Email == "" {
		if sub := claimString(claims["sub"]); strings.Contains(sub, "@") {
			out.Email = sub
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	return out, nil
}

var rolePrecedence = []models.UserRole{models.RoleAdmin, models.RoleDirecteur, models.RoleDoctorant}

func primaryRole(roles []models.UserRole) models.UserRole {
	for _, want := range rolePrecedence {
		for _, have := range roles {
			if have == want {
				return want
			}
		}
	}
	return roles[0]
}

func firstClaimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v := claimString(claims[key]); v != "" {
			return v
		}
	}
	return ""
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case map[string]interface{}:
		return claimString(t["authority"])
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func claimList(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := claimString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, ",")
	}
	return nil
}

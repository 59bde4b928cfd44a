package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

func TestIdentityClientResolveUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/users/id/42":
			_, _ = w.Write([]byte(`{"id":42,"email":"dir@univ.ma","nom":"Alaoui","prenom":"Sara","role":"ROLE_DIRECTEUR"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, time.Second)
	ctx := WithAuthorization(context.Background(), "Bearer abc")

	user, err := c.ResolveUser(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "Sara Alaoui", user.FullName)
	assert.Equal(t, models.RoleDirecteur, user.Role)

	_, err = c.ResolveUser(ctx, "7")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = c.ValidateRole(ctx, "42", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrRoleMismatch)
}

func TestIdentityClientUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewIdentityClient(srv.URL, time.Second).ResolveUser(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUpstreamUnavailable))
}

func TestIdentityClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewIdentityClient(srv.URL, 20*time.Millisecond).ResolveUser(context.Background(), "1")
	assert.True(t, errors.Is(err, appErrors.ErrUpstreamUnavailable))
}

func TestInscriptionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/dossiers/doctorants/doc-1/initial-date":
			_, _ = w.Write([]byte(`{"data":{"doctorantId":"doc-1","dateInscriptionInitiale":"2019-10-01T00:00:00Z","derogation":true}}`))
		case "/api/v1/dossiers/doctorants/doc-2/initial-date":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewInscriptionClient(srv.URL, "/api/v1", time.Second)

	initial, err := c.InitialInscription(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2019, initial.Date.Year())
	assert.True(t, initial.Derogation)

	none, err := c.InitialInscription(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = c.InitialInscription(context.Background(), "doc-3")
	assert.True(t, errors.Is(err, appErrors.ErrUpstreamUnavailable))
}

type recordingObserver struct {
	services []string
	errs     []error
}

func (o *recordingObserver) ObserveUpstream(service string, err error, _ time.Duration) {
	o.services = append(o.services, service)
	o.errs = append(o.errs, err)
}

func TestObserverRecordsUpstreamCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewInscriptionClient(srv.URL, "/api/v1", time.Second)
	c.Observe(obs)

	_, err := c.InitialInscription(context.Background(), "doc-1")
	require.Error(t, err)
	require.Len(t, obs.services, 1)
	assert.Equal(t, "inscription", obs.services[0])
	assert.Error(t, obs.errs[0])
}

package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestAccessIsGrantedByPolicy(t *testing.T) {
	is := is.New(t)

	a, err := NewAuthorizer(context.Background(), bytes.NewBufferString(readOnlyPolicy))
	is.NoErr(err)

	req := httptest.NewRequest(http.MethodGet, "/api/v0/state", nil)
	req.Header.Set("Authorization", "Bearer sometoken")

	is.NoErr(a.Authorize(context.Background(), req, []string{"ngsild"}))
}

func TestAccessIsDeniedByPolicy(t *testing.T) {
	is := is.New(t)

	a, err := NewAuthorizer(context.Background(), bytes.NewBufferString(readOnlyPolicy))
	is.NoErr(err)

	req := httptest.NewRequest(http.MethodPost, "/api/v0/notifications", nil)

	err = a.Authorize(context.Background(), req, nil)
	is.True(errors.Is(err, ErrAccessDenied))
}

func TestInvalidPolicyFails(t *testing.T) {
	is := is.New(t)

	_, err := NewAuthorizer(context.Background(), bytes.NewBufferString("this is not rego"))
	is.True(err != nil)
}

const readOnlyPolicy string = `
package contextbridge.authz

default allow := false

allow = response {
    input.method == "GET"
    input.token == "sometoken"
    response := {}
}
`

func TestReloadReplacesPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, err := NewReloadableAuthorizer(ctx, bytes.NewBufferString(readOnlyPolicy))
	is.NoErr(err)

	req := httptest.NewRequest(http.MethodPost, "/api/v0/notifications", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	is.True(errors.Is(a.Authorize(ctx, req, nil), ErrAccessDenied))

	is.NoErr(a.Reload(ctx, bytes.NewBufferString(allowAllPolicy)))
	is.NoErr(a.Authorize(ctx, req, nil))
}

func TestFailedReloadKeepsPreviousPolicy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, _ := NewReloadableAuthorizer(ctx, bytes.NewBufferString(allowAllPolicy))

	is.True(a.Reload(ctx, bytes.NewBufferString("package broken {")) != nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v0/state", nil)
	is.NoErr(a.Authorize(ctx, req, nil))
}

func TestWatchReloadsChangedPolicyFile(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "authz.rego")
	is.NoErr(os.WriteFile(path, []byte(readOnlyPolicy), 0o600))

	a, err := NewReloadableAuthorizer(ctx, bytes.NewBufferString(readOnlyPolicy))
	is.NoErr(err)
	is.NoErr(a.Watch(ctx, path))

	is.NoErr(os.WriteFile(path, []byte(allowAllPolicy), 0o600))

	req := httptest.NewRequest(http.MethodDelete, "/api/v0/state", nil)

	deadline := time.Now().Add(5 * time.Second)
	for a.Authorize(ctx, req, nil) != nil {
		if time.Now().After(deadline) {
			is.Fail() // policy file was never reloaded
		}
		time.Sleep(50 * time.Millisecond)
	}
}

const allowAllPolicy string = `
package contextbridge.authz

allow = {}
`

package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/matryer/is"
)

func TestRouterRecoversFromPanics(t *testing.T) {
	is := is.New(t)

	r := New("context-bridge")
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusInternalServerError)
}

func TestRouterAllowsCrossOriginRequests(t *testing.T) {
	is := is.New(t)

	r := New("context-bridge")
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/state", nil)
	req.Header.Set("Origin", "http://example.org")

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(resp.Header.Get("Access-Control-Allow-Origin") != "")
}

func TestRequestsAreLogged(t *testing.T) {
	is := is.New(t)

	r := New("context-bridge")
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Value(middleware.LogEntryCtxKey).(*httplog.RequestLoggerEntry)
		is.True(ok) // request should carry a log entry
		is.True(middleware.GetReqID(r.Context()) != "")
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/state")
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusOK)
}

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoggerEmitsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(TenantExtractor)
	r.Use(Logger)
	r.Get("/v1/agents/{agentID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/agents/a1", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{
		`"route":"/v1/agents/{agentID}"`,
		`"path":"/v1/agents/a1"`,
		`"tenant_id":"t1"`,
		`"status":404`,
		`"request_id":`,
		`"level":"warn"`, // 4xx logs at warn
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s:\n%s", want, out)
		}
	}
}

func TestLoggerSuccessLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	r := chi.NewRouter()
	r.Use(Logger)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("expected info level log:\n%s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Errorf("expected status 200:\n%s", out)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return assertErr{} }

	cases := []struct {
		name   string
		checks []Check
		path   string
		want   int
	}{
		{name: "healthz ok", checks: []Check{{Name: "postgres", Ping: bad}}, path: "/healthz", want: 200},
		{name: "readyz no checks", path: "/readyz", want: 200},
		{name: "readyz ok", checks: []Check{{Name: "postgres", Ping: ok}, {Name: "redis", Ping: ok}}, path: "/readyz", want: 200},
		{name: "readyz degraded", checks: []Check{{Name: "postgres", Ping: ok}, {Name: "redis", Ping: bad}}, path: "/readyz", want: 503},
		{name: "nil ping skipped", checks: []Check{{Name: "postgres"}}, path: "/readyz", want: 200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			NewHealthHandler(tc.checks...).Register(r)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("want %d got %d", tc.want, w.Code)
			}
		})
	}
}

func TestHealthHandler_ReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHealthHandler(Check{Name: "redis", Ping: func(context.Context) error { return assertErr{} }}).Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Status != "degraded" || body.Checks["redis"] != "err" {
		t.Fatalf("unexpected body %+v", body)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "err" }

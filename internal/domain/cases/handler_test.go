package cases

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/blobstore"
)

func newTestServer(f *fixture) *echo.Echo {
	e := echo.New()
	g := e.Group("/api/v1")
	NewHandler(f.svc).RegisterRoutes(g)
	return e
}

// identityMiddleware injects a fixed identity, standing in for the JWT layer.
func withIdentity(e *echo.Echo, ident auth.Identity, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := auth.WithIdentity(req.Context(), ident)
	e.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandler_TransitionOK(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	body := `{"to":"READY_FOR_REVIEW","note":"first pass done"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/"+c.ID.String()+"/transition", strings.NewReader(body))
	rec := withIdentity(e, f.lab, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got DentalCase
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if got.Status != StatusReadyForReview {
		t.Fatalf("expected READY_FOR_REVIEW, got %s", got.Status)
	}
}

func TestHandler_TransitionForbidden(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	body := `{"to":"READY_FOR_REVIEW"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/"+c.ID.String()+"/transition", strings.NewReader(body))
	rec := withIdentity(e, f.doctor, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_InvalidTargetStatus(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	body := `{"to":"TELEPORTED"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/"+c.ID.String()+"/transition", strings.NewReader(body))
	rec := withIdentity(e, f.admin, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ReviewSetByCustomerIs403(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	body := `{"needs_review":true,"question":"?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/"+c.ID.String()+"/review", strings.NewReader(body))
	rec := withIdentity(e, f.doctor, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_HiddenCaseIs404(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/"+c.ID.String(), nil)
	rec := withIdentity(e, f.stranger, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unaffiliated customer, got %d", rec.Code)
	}
}

func TestHandler_NoIdentityIs401(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	c := f.newCase(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/"+c.ID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Triage(t *testing.T) {
	f := newFixture()
	e := newTestServer(f)
	f.newCase(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/triage", nil)
	rec := withIdentity(e, f.doctor, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var counts TriageCounts
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if counts.UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %d", counts.UnreadCount)
	}
}

func TestHandler_UploadURL(t *testing.T) {
	f := newFixture()
	signer := blobstore.NewLocalSigner("")
	f.svc = NewService(f.repo, f.affils, signer, 15*time.Minute, passthroughTx)
	e := newTestServer(f)
	c := f.newCase(t)

	body := `{"kind":"scan","filename":"arch.stl","content_type":"model/stl"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/"+c.ID.String()+"/files/upload-url", strings.NewReader(body))
	rec := withIdentity(e, f.lab, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var target UploadTarget
	if err := json.Unmarshal(rec.Body.Bytes(), &target); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if target.Key == "" || target.URL == "" {
		t.Fatalf("incomplete target: %+v", target)
	}
}

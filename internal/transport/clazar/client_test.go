package clazar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
)

func testPayload() domain.MeteringPayload {
	return domain.MeteringPayload{Request: []domain.MeteringRecord{{
		Cloud:      "aws",
		ContractID: "contract-a",
		Dimension:  "cpu_core_hours",
		StartTime:  "2025-06-01T00:00:00Z",
		EndTime:    "2025-06-30T23:59:59Z",
		Quantity:   "720",
	}}}
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authenticate/" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ClientID != "cid" || req.ClientSecret != "secret" {
			t.Errorf("credentials = %+v", req)
		}
		json.NewEncoder(w).Encode(authResponse{AccessToken: "tok-123"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ClientID: "cid", ClientSecret: "secret"}, zap.NewNop())
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.accessToken != "tok-123" {
		t.Errorf("token = %q", c.accessToken)
	}
}

func TestAuthenticate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	if err := c.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubmit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metering/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		var payload domain.MeteringPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if len(payload.Request) != 1 || payload.Request[0].Quantity != "720" {
			t.Errorf("payload = %+v", payload)
		}
		json.NewEncoder(w).Encode(meteringResponse{Results: []resultItem{
			{ID: "m-1", Status: "success"},
		}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	c.SetToken("tok")
	if err := c.Submit(context.Background(), testPayload()); err != nil {
		t.Fatal(err)
	}
}

func TestSubmit_FailItemIn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(meteringResponse{Results: []resultItem{
			{Status: "fail", Errors: []string{"dimension not registered"}},
		}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	c.SetToken("tok")

	err := c.Submit(context.Background(), testPayload())
	var serr *domain.SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if serr.Code != "API_ERROR" || len(serr.Errors) != 1 {
		t.Errorf("submission error = %+v", serr)
	}
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Error("expected ErrSubmissionFailed sentinel")
	}
}

func TestSubmit_ErrorsOnlyItem(t *testing.T) {
	// Some rejections arrive with only the errors field set: no code, no
	// status. Those still fail the contract.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(meteringResponse{Results: []resultItem{
			{Errors: []string{"dimension not registered"}},
		}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	c.SetToken("tok")

	err := c.Submit(context.Background(), testPayload())
	var serr *domain.SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if serr.Code != "API_ERROR" {
		t.Errorf("code = %q, want API_ERROR", serr.Code)
	}
	if len(serr.Errors) != 1 || serr.Errors[0] != "dimension not registered" {
		t.Errorf("errors = %v", serr.Errors)
	}
}

func TestSubmit_ErrorCodeItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(meteringResponse{Results: []resultItem{
			{Code: "ERROR_001", Message: "contract expired"},
		}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	c.SetToken("tok")

	err := c.Submit(context.Background(), testPayload())
	var serr *domain.SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if serr.Code != "ERROR_001" || serr.Message != "contract expired" {
		t.Errorf("submission error = %+v", serr)
	}
}

func TestSubmit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	c.SetToken("tok")

	err := c.Submit(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected error")
	}
	var serr *domain.SubmissionError
	if errors.As(err, &serr) {
		t.Errorf("non-200 must not be a SubmissionError: %v", err)
	}
}

func TestSubmit_RequiresToken(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	if err := c.Submit(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error for missing token")
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestAPIClient_ProvisionCrew(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /crews": `{"crew":{"id":"crew-1","crew_code":"ACME-001-CRW-DEADBEEF"},"tables_created":2}`,
	})

	client := ts.client()
	resp, err := client.post("/crews", map[string]string{
		"client_code": "ACME-001",
		"name":        "Support",
		"type":        "customer_support",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Crew          json.RawMessage `json:"crew"`
		TablesCreated int             `json:"tables_created"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.TablesCreated != 2 {
		t.Errorf("tables_created = %d, want 2", result.TablesCreated)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["type"] != "customer_support" {
		t.Errorf("body.type = %q, want customer_support", body["type"])
	}
}

func TestAPIClient_SurfacesServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	_, err := client.get("/crews?client=NOPE-001")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error %q should carry the server message", err)
	}
}

func TestAPIClient_DeleteClient(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /clients/ACME-001": `{"crewsDeleted":3,"failedCrewDeletions":0,"conversationsDeleted":12}`,
	})

	client := ts.client()
	resp, err := client.delete("/clients/ACME-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		CrewsDeleted         int   `json:"crewsDeleted"`
		ConversationsDeleted int64 `json:"conversationsDeleted"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.CrewsDeleted != 3 || result.ConversationsDeleted != 12 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "hello"); strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "hello"); !strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

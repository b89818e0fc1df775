package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"squeegee/pkg/logging"
)

func testLogger() logging.Logger {
	l := logging.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{APIURL: "", APIKey: "k", Logger: testLogger()}); err == nil {
		t.Error("expected error without API URL")
	}
	if _, err := NewClient(Config{APIURL: "https://x", APIKey: "", Logger: testLogger()}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestSendInjectsAuthAndForwards(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected injected bearer key, got %q", got)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("invalid forwarded body: %v", err)
		}
		if body["to"] != "+447700900000" || body["message"] != "Your window clean is booked" {
			t.Errorf("unexpected forwarded body: %v", body)
		}
		if body["from"] != "Squeegee" {
			t.Errorf("expected default sender, got %q", body["from"])
		}

		w.Write([]byte(`{"id":"msg_1","status":"queued"}`))
	}))
	defer upstream.Close()

	c, err := NewClient(Config{
		APIURL:        upstream.URL,
		APIKey:        "test-key",
		DefaultSender: "Squeegee",
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	result, err := c.Send(context.Background(), "+447700900000", "Your window clean is booked", "")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if !strings.Contains(result.Response, "msg_1") {
		t.Errorf("expected provider response passthrough, got %q", result.Response)
	}
}

func TestSendSurfacesProviderErrors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer upstream.Close()

	c, err := NewClient(Config{APIURL: upstream.URL, APIKey: "test-key", Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = c.Send(context.Background(), "nope", "hi", "")
	if err == nil {
		t.Fatal("expected error for provider 422")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "invalid number") {
		t.Errorf("expected status and body in error, got %v", err)
	}
}

package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(50 * time.Millisecond)
	defer client.CloseIdleConnections()

	resp, err := client.Get(server.URL + "/fast")
	if err != nil {
		t.Fatalf("fast request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	if _, err := client.Get(server.URL + "/slow"); err == nil {
		t.Error("expected timeout on slow request")
	}
}

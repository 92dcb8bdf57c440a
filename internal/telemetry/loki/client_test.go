package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_PushEventJSON(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw := []byte(`{"principalId":"p1","eventType":"refresh_reuse_detected","source":"issuer","createdAt":"2026-03-01T10:00:00Z"}`)
	if err := NewClient(srv.URL+"/", nil).PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != "meetmate" || s.Stream["event_type"] != "refresh_reuse_detected" || s.Stream["source"] != "issuer" {
		t.Errorf("labels = %v", s.Stream)
	}
	if s.Values[0][0] != "1772359200000000000" || s.Values[0][1] != string(raw) {
		t.Errorf("values = %v", s.Values)
	}
}

func TestClient_PushEvent_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if err := NewClient(srv.URL, nil).PushEventJSON(context.Background(), []byte("not json")); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestClient_EmptyBaseURL(t *testing.T) {
	if err := NewClient("", nil).PushEventJSON(context.Background(), []byte("{}")); err == nil {
		t.Error("expected error for empty base URL")
	}
}

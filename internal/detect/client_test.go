package detect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect(t *testing.T) {
	var gotBody []byte
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %q, want /detect", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("confidence")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"person_count": 12, "avg_confidence": 0.81, "method": "yolov8n"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.5)
	got, err := c.Detect(context.Background(), []byte("jpeg bytes"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if got.Count != 12 {
		t.Errorf("Count = %d, want 12", got.Count)
	}
	if got.AvgConfidence != 0.81 {
		t.Errorf("AvgConfidence = %v, want 0.81", got.AvgConfidence)
	}
	if got.Method != "yolov8n" {
		t.Errorf("Method = %q, want yolov8n", got.Method)
	}
	if string(gotBody) != "jpeg bytes" {
		t.Errorf("request body = %q", gotBody)
	}
	if gotQuery != "0.50" {
		t.Errorf("confidence query = %q, want 0.50", gotQuery)
	}
}

func TestDetect_SidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.5)
	if _, err := c.Detect(context.Background(), []byte("x")); err == nil {
		t.Fatal("Detect succeeded against a failing sidecar")
	}
}

func TestDetect_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.5)
	if _, err := c.Detect(context.Background(), []byte("x")); err == nil {
		t.Fatal("Detect succeeded on undecodable response")
	}
}

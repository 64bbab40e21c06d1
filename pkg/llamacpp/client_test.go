package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDetectFaces(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"faces\": [{\"box\": [0.5, 0.5, 0.7, 0.8], \"confidence\": 0.6}]}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	result, err := c.DetectFaces(context.Background(), "gemma3", "find faces", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(result.Faces) != 1 || result.Faces[0].Box != [4]float64{0.5, 0.5, 0.7, 0.8} {
		t.Fatalf("Unexpected result %+v", result)
	}

	if got.Model != "gemma3" || got.Stream {
		t.Errorf("Unexpected request %+v", got)
	}
	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", got.Messages[0].Content)
	}
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(image, "data:image/jpeg;base64,aGVsbG8=") {
		t.Errorf("Unexpected image URL %q", image)
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": [{"type": "text", "text": "two people"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "m", "describe", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "two people" {
		t.Errorf("Unexpected reply %q", text)
	}
}

func TestServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.DetectFaces(context.Background(), "m", "p", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status error, got %v", err)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer empty.Close()

	c, _ = NewClient(empty.URL)
	if _, err := c.DetectFaces(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != DefaultURL {
		t.Errorf("Expected %s, got %s", DefaultURL, c.baseURL)
	}
}

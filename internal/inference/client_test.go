package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuildPayload(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "you are a coach"},
		{Role: "user", Content: "hello"},
	}

	p := BuildPayload(messages, "coach-chat-1", 0.7)

	if p.Model != "coach-chat-1" {
		t.Errorf("Model = %q, want coach-chat-1", p.Model)
	}
	if len(p.Input.Messages) != 2 || p.Input.Messages[1].Content != "hello" {
		t.Errorf("Input.Messages = %+v", p.Input.Messages)
	}
	if p.Parameters.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", p.Parameters.Temperature)
	}

	// Wire shape is {model, input: {messages}, parameters: {temperature}}.
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"model", "input", "parameters"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("wire payload missing %q: %s", key, raw)
		}
	}
}

func TestInfer_JSONResponse(t *testing.T) {
	var gotAuth, gotContentType string
	var gotPayload Payload

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":"hello there"}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "sk-test", WithHTTPClient(upstream.Client()))
	res, err := c.Infer(context.Background(), BuildPayload([]Message{{Role: "user", Content: "hi"}}, "m1", 0.2))
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotPayload.Model != "m1" {
		t.Errorf("upstream saw model %q, want m1", gotPayload.Model)
	}
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", res.Status)
	}
	body, ok := res.Body.(map[string]any)
	if !ok || body["output"] != "hello there" {
		t.Errorf("Body = %+v", res.Body)
	}
}

func TestInfer_NonJSONResponseWrappedAsRaw(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "sk-test", WithHTTPClient(upstream.Client()))
	res, err := c.Infer(context.Background(), Payload{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	body, ok := res.Body.(map[string]any)
	if !ok {
		t.Fatalf("Body = %T, want map", res.Body)
	}
	if body["raw"] != "<html>gateway error</html>" {
		t.Errorf("raw = %v", body["raw"])
	}
}

func TestInfer_StatusNormalization(t *testing.T) {
	tests := []struct {
		name     string
		upstream int
		want     int
	}{
		{"200 stays 200", 200, 200},
		{"201 collapses to 200", 201, 200},
		{"204 collapses to 200", 204, 200},
		{"429 passes through", 429, 429},
		{"500 passes through", 500, 500},
		{"404 passes through", 404, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.upstream)
				w.Write([]byte(`{"ok":true}`))
			}))
			defer upstream.Close()

			c := NewClient(upstream.URL, "sk-test", WithHTTPClient(upstream.Client()))
			res, err := c.Infer(context.Background(), Payload{})
			if err != nil {
				t.Fatalf("Infer() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %d, want %d", res.Status, tt.want)
			}
		})
	}
}

func TestInfer_NotConfigured(t *testing.T) {
	c := NewClient("", "")
	if _, err := c.Infer(context.Background(), Payload{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Infer() error = %v, want ErrNotConfigured", err)
	}
}

func TestInfer_TransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "sk-test")
	if _, err := c.Infer(context.Background(), Payload{}); err == nil {
		t.Fatal("Infer() expected transport error, got nil")
	}
}

func TestInfer_TimeoutCancelsCall(t *testing.T) {
	blocked := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-blocked:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(blocked)

	c := NewClient(upstream.URL, "sk-test",
		WithHTTPClient(upstream.Client()),
		WithTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := c.Infer(context.Background(), Payload{})
	if err == nil {
		t.Fatal("Infer() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Infer() took %v, timeout not applied", elapsed)
	}
}

package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type memCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memCreds) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memCreds) ClearToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/api/user/profile" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"user":{"name":"Ravi"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", &memCreds{token: "tok-1"})
	var out struct {
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	if err := c.Get(context.Background(), "/user/profile", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.User.Name != "Ravi" {
		t.Errorf("name = %q", out.User.Name)
	}
}

func TestPost_SendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &memCreds{token: "tok"})
	if err := c.Post(context.Background(), "/user/angel/settings", map[string]bool{"liveEnabled": true}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestUnauthorized_ClearsAndRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error":"jwt expired"}`))
	}))
	defer srv.Close()

	creds := &memCreds{token: "stale"}
	redirects := 0
	c := NewClient(srv.URL, creds, OnSessionExpired(func() { redirects++ }))

	err := c.Get(context.Background(), "/user/profile", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if creds.Token() != "" || creds.cleared != 1 {
		t.Errorf("credential not cleared: token=%q cleared=%d", creds.Token(), creds.cleared)
	}
	if redirects != 1 {
		t.Errorf("redirects = %d, want 1", redirects)
	}
}

func TestNoCredential_RedirectsWithoutRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	redirects := 0
	c := NewClient(srv.URL, &memCreds{}, OnSessionExpired(func() { redirects++ }))
	err := c.Post(context.Background(), "/user/angel/complete", map[string]string{}, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v", err)
	}
	if hits != 0 {
		t.Errorf("request sent without a credential")
	}
	if redirects != 1 {
		t.Errorf("redirects = %d, want 1", redirects)
	}
}

func TestServerError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error field", http.StatusBadRequest, `{"ok":false,"error":"Invalid request token"}`, "Invalid request token"},
		{"message field", http.StatusConflict, `{"message":"Broker already linked"}`, "Broker already linked"},
		{"ok false with 200", http.StatusOK, `{"ok":false,"error":"Plan required"}`, "Plan required"},
		{"no body", http.StatusInternalServerError, ``, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, &memCreds{token: "tok"})
			err := c.Get(context.Background(), "/user/angel/funds", nil)
			var re *Error
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if re.Type != ServerErrorT || re.Message != tt.wantMsg {
				t.Errorf("error = %+v", re)
			}
			if got := UserMessage(err, "fallback"); got != tt.wantMsg {
				t.Errorf("UserMessage = %q", got)
			}
		})
	}
}

func TestRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, &memCreds{token: "tok"})
	err := c.Get(context.Background(), "/user/profile", nil)
	var re *Error
	if !errors.As(err, &re) || re.Type != RequestErrorT {
		t.Fatalf("err = %v, want RequestError", err)
	}
	if got := UserMessage(err, "Try again."); got != "Try again." {
		t.Errorf("UserMessage = %q", got)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/user/profile":              "/user/profile",
		"/user/angel/tokens/abc-123": "/user/angel/tokens/",
		"/user/angel/tokens/":        "/user/angel/tokens/",
	}
	for in, want := range tests {
		if got := endpointLabel(in); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

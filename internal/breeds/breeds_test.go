package breeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientBreeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"siam","name":"Siamese"},{"id":"beng","name":"Bengal"},{"id":"x","name":""}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "secret"
	names, err := c.Breeds(context.Background())
	if err != nil {
		t.Fatalf("breeds: %v", err)
	}
	if len(names) != 2 || names[0] != "Siamese" || names[1] != "Bengal" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestClientNon200IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Breeds(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientBadJSONIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Breeds(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Breeds(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMatch(t *testing.T) {
	names := []string{"Siamese", "Maine Coon"}
	cases := map[string]bool{
		"siamese":    true,
		"SIAMESE":    true,
		"maine coon": true,
		" Siamese ":  false,
		"Sphynx":     false,
		"":           false,
	}
	for in, want := range cases {
		if got := Match(names, in); got != want {
			t.Fatalf("Match(%q) = %v, want %v", in, got, want)
		}
	}
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"spycats/internal/config"
	"spycats/internal/engine"
	"spycats/internal/logging"
)

func TestResolveConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ResolveConfig(dir, Overrides{BreedsURL: "http://breeds.local/v1/breeds", Addr: ":9999"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Breeds.URL != "http://breeds.local/v1/breeds" || cfg.Server.Addr != ":9999" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := ResolveConfig(dir, Overrides{DBDriver: "postgres"}); err == nil {
		t.Fatalf("expected postgres without dsn to fail validation")
	}
}

func TestOpenWiresBreedClient(t *testing.T) {
	breedsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Siamese"},{"name":"Bengal"}]`))
	}))
	defer breedsAPI.Close()

	dir := t.TempDir()
	cfg, err := ResolveConfig(dir, Overrides{BreedsURL: breedsAPI.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, err := Open(ctx, dir, cfg, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.SchemaVersion < 1 {
		t.Fatalf("expected migrations to run, got version %d", a.SchemaVersion)
	}

	agent, err := a.Engine.RegisterAgent(ctx, engine.AgentInput{Name: "Tom", YearsOfExperience: 2, Breed: "bengal", Salary: 100})
	if err != nil {
		t.Fatalf("register through http breed client: %v", err)
	}
	if agent.ID == 0 {
		t.Fatalf("expected stored agent")
	}

	h, err := a.Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  addr: ":9000"
database:
  driver: postgres
  host: 127.0.0.1
  port: "5432"
  user: water
  password: secret
  dbname: hydro
mesh:
  interval: 5
  honor_holes: true
cache:
  ttl: 10m
sites:
  creek:
    center: [-91.8402543, 42.119872]
    levels: 6
    water:
      text_size: 0.3
      shiny: 22
      spec: 1.7
      diffuse: 5.1
      water_color: "#001e0f"
      rf0: 0.13
      level: 5
  cedar:
    center: [-91.6, 41.9]
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Mode != "release" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Mesh.Interval != 5 || !cfg.Mesh.HonorHoles || cfg.Mesh.Workers != 4 || cfg.Mesh.MaxSamples != 4000000 {
		t.Fatalf("unexpected mesh config %+v", cfg.Mesh)
	}
	if cfg.Cache.TTL != 10*time.Minute || cfg.Cache.MaxSize != 256 {
		t.Fatalf("unexpected cache config %+v", cfg.Cache)
	}
	want := "host=127.0.0.1 user=water password=secret dbname=hydro port=5432 sslmode=disable TimeZone=UTC"
	if got := cfg.Database.ConnString(); got != want {
		t.Fatalf("ConnString = %q", got)
	}

	creek, err := cfg.Site("creek")
	if err != nil {
		t.Fatalf("Site: %v", err)
	}
	if creek.Center != [2]float64{-91.8402543, 42.119872} || creek.Levels != 6 || creek.Water.Level != 5 {
		t.Fatalf("unexpected creek config %+v", creek)
	}
	cedar, _ := cfg.Site("cedar")
	if cedar.Levels != 1 || cedar.Water != DefaultWaterControls() {
		t.Fatalf("cedar should receive defaults, got %+v", cedar)
	}
	if names := cfg.SiteNames(); len(names) != 2 || names[0] != "cedar" || names[1] != "creek" {
		t.Fatalf("SiteNames = %v", names)
	}
	if _, err := cfg.Site("missing"); !errors.Is(err, ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
}

func TestParseConfigMaxSamples(t *testing.T) {
	cases := []struct {
		yaml string
		want int
	}{
		{"mesh:\n  max_samples: 0\n", 4000000},
		{"mesh:\n  max_samples: 1000\n", 1000},
		{"mesh:\n  max_samples: -1\n", -1},
	}
	for _, tc := range cases {
		cfg, err := ParseConfig([]byte(tc.yaml))
		if err != nil {
			t.Fatalf("ParseConfig(%q): %v", tc.yaml, err)
		}
		if cfg.Mesh.MaxSamples != tc.want {
			t.Fatalf("ParseConfig(%q): max_samples = %d, want %d", tc.yaml, cfg.Mesh.MaxSamples, tc.want)
		}
	}
	if Default().Mesh.MaxSamples <= 0 {
		t.Fatalf("default config must bound the sampling grid")
	}
}

func TestParseConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":    "database:\n  driver: oracle\n",
		"latitude":  "sites:\n  north:\n    center: [0, 90]\n",
		"level":     "sites:\n  a:\n    center: [0, 0]\n    levels: 2\n    water:\n      level: 3\n",
		"interval":  "mesh:\n  interval: -1\n",
		"malformed": "server: [",
	}
	for name, data := range cases {
		if _, err := ParseConfig([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(cfg.Sites))
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaultConnString(t *testing.T) {
	if got := (DatabaseConfig{Driver: "sqlite"}).ConnString(); got != "hydromesh.db" {
		t.Fatalf("sqlite default = %q", got)
	}
	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: "3306", Username: "u", Password: "p", Dbname: "w"}
	if got := my.ConnString(); got != "u:p@tcp(db:3306)/w?charset=utf8mb4&parseTime=True&loc=Local" {
		t.Fatalf("mysql = %q", got)
	}
}

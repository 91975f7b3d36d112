package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("Unexpected chunking defaults: %+v", cfg.Ingest)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.SimilarityThreshold != 0.7 {
		t.Errorf("Unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Ingest.MaxUploadBytes != 50*1024*1024 {
		t.Errorf("Unexpected upload limit: %d", cfg.Ingest.MaxUploadBytes)
	}
	if len(cfg.Verticals) == 0 {
		t.Error("No default verticals configured")
	}
	if _, ok := cfg.Principals["alice"]; !ok {
		t.Error("Default principal directory missing alice")
	}
	if !cfg.IsDevelopment() {
		t.Errorf("Expected development environment, got %q", cfg.App.Environment)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"overlap not below size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Ingest.ChunkOverlap = -1 }},
		{"zero upload limit", func(c *Config) { c.Ingest.MaxUploadBytes = 0 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"threshold above one", func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }},
		{"no verticals", func(c *Config) { c.Verticals = nil }},
		{"company with unknown vertical", func(c *Config) {
			c.Companies["Ghost Corp"] = []string{"aerospace"}
		}},
		{"principal with unknown role", func(c *Config) {
			c.Principals["eve"] = PrincipalConfig{Role: "superuser"}
		}},
		{"principal with unknown company", func(c *Config) {
			c.Principals["eve"] = PrincipalConfig{Role: "ceo", Companies: []string{"Ghost Corp"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offloader.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Catalog.Engine != "sqlite" {
		t.Errorf("Catalog.Engine = %q, want sqlite", cfg.Catalog.Engine)
	}
	if cfg.Migration.MigratePageSize != 5 || cfg.Migration.RevertPageSize != 10 ||
		cfg.Migration.ReuploadPageSize != 10 || cfg.Migration.DeleteLocalPageSize != 10 {
		t.Errorf("unexpected page sizes: %+v", cfg.Migration)
	}
	if cfg.Migration.CheckpointTTLDuration().Hours() != 1 {
		t.Errorf("CheckpointTTL = %v, want 1h", cfg.Migration.CheckpointTTLDuration())
	}
	if !*cfg.Migration.RevertRequireAllFiles {
		t.Error("RevertRequireAllFiles should default to true")
	}
	if !*cfg.Migration.Exclusive {
		t.Error("Exclusive should default to true")
	}
	if cfg.Storage.KeepLocal {
		t.Error("KeepLocal should default to false")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	yaml := `
server:
  port: 9999
  api_token: secret
migration:
  migrate_page_size: 2
  item_pause_ms: 0
  revert_require_all_files: false
storage:
  backend: s3
  keep_local: true
  public_base_url: https://cdn.example.com
  s3:
    endpoint: https://acct.r2.cloudflarestorage.com
    bucket: media
    access_key: ak
    secret_key: sk
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Server.APIToken != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Migration.MigratePageSize != 2 {
		t.Errorf("MigratePageSize = %d, want 2", cfg.Migration.MigratePageSize)
	}
	if cfg.Migration.ItemPause() != 0 {
		t.Errorf("ItemPause = %v, want 0", cfg.Migration.ItemPause())
	}
	if *cfg.Migration.RevertRequireAllFiles {
		t.Error("RevertRequireAllFiles should be false")
	}
	if !cfg.Storage.KeepLocal {
		t.Error("KeepLocal should be true")
	}
	if cfg.Storage.S3.Region != "auto" {
		t.Errorf("S3.Region = %q, want auto", cfg.Storage.S3.Region)
	}
	if err := ValidateStorage(cfg.Storage); err != nil {
		t.Errorf("ValidateStorage: %v", err)
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("OFFLOADER_TEST_SECRET", "from-env")
	cfg, err := Parse([]byte("storage:\n  s3:\n    secret_key: ${OFFLOADER_TEST_SECRET}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.S3.SecretKey != "from-env" {
		t.Errorf("SecretKey = %q, want from-env", cfg.Storage.S3.SecretKey)
	}
}

func TestLoadFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "offloader.example.yaml"), []byte("server:\n  port: 7000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestValidateStorage(t *testing.T) {
	complete := StorageConfig{
		Backend:       "s3",
		PublicBaseURL: "https://cdn.example.com",
		S3: S3Config{
			Endpoint:  "https://acct.r2.cloudflarestorage.com",
			Region:    "auto",
			Bucket:    "media",
			AccessKey: "ak",
			SecretKey: "sk",
		},
	}

	tests := []struct {
		name    string
		mutate  func(*StorageConfig)
		wantErr string
	}{
		{"complete", func(*StorageConfig) {}, ""},
		{"no access key", func(s *StorageConfig) { s.S3.AccessKey = "" }, "access_key"},
		{"no secret and bucket", func(s *StorageConfig) { s.S3.SecretKey = ""; s.S3.Bucket = "" }, "bucket"},
		{"bad endpoint", func(s *StorageConfig) { s.S3.Endpoint = "not a url" }, "endpoint"},
		{"no public url", func(s *StorageConfig) { s.PublicBaseURL = "" }, "public_base_url"},
		{"azure account url", func(s *StorageConfig) { s.Backend = "azure"; s.Azure = AzureConfig{Container: "c"} }, "account_url"},
		{"azure by account", func(s *StorageConfig) { s.Backend = "azure"; s.Azure = AzureConfig{Container: "c", Account: "acct"} }, ""},
		{"memory", func(s *StorageConfig) { s.Backend = "memory"; s.S3 = S3Config{} }, ""},
		{"unknown backend", func(s *StorageConfig) { s.Backend = "ftp" }, "ftp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := complete
			tt.mutate(&s)
			err := ValidateStorage(s)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, offerr.ErrNotConfigured) {
				t.Errorf("error %v should match ErrNotConfigured", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAzureResolvedAccountURL(t *testing.T) {
	if got := (AzureConfig{Account: "acct"}).ResolvedAccountURL(); got != "https://acct.blob.core.windows.net" {
		t.Errorf("got %q", got)
	}
	if got := (AzureConfig{Account: "acct", AccountURL: "http://127.0.0.1:10000/devstore"}).ResolvedAccountURL(); got != "http://127.0.0.1:10000/devstore" {
		t.Errorf("got %q", got)
	}
}

func TestYAMLName(t *testing.T) {
	for in, want := range map[string]string{"AccessKey": "access_key", "AccountURL": "account_url", "Bucket": "bucket", "RootDir": "root_dir"} {
		if got := yamlName(in); got != want {
			t.Errorf("yamlName(%q) = %q, want %q", in, got, want)
		}
	}
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs/something", "/docs"},
		{"/openapi.json", "/openapi.json"},
		{"/", "/"},
		{"", "/"},
		{"/v1/operations/migrate/step", "/v1/operations/{operation}/step"},
		{"/v1/operations/revert/progress", "/v1/operations/{operation}/progress"},
		{"/v1/operations/revert/checkpoint", "/v1/operations/{operation}/checkpoint"},
		{"/v1/assets/42", "/v1/assets/{id}"},
		{"/v1/assets/42/offload", "/v1/assets/{id}/offload"},
		{"/v1/assets/42/remote", "/v1/assets/{id}/remote"},
		{"/random/path", "/other"},
		{"/v1/assets", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	Register()
	Register()

	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)
	StepsTotal.WithLabelValues("migrate", "success").Inc()
	StepDuration.WithLabelValues("migrate").Observe(0.5)
	AssetsTotal.WithLabelValues("migrate", "ok").Inc()
	Progress.WithLabelValues("migrate").Set(41.67)
}

func TestObserveFile(t *testing.T) {
	before := testutil.ToFloat64(BytesUploadedTotal)
	ObserveFile("upload", 1024, nil)
	if got := testutil.ToFloat64(BytesUploadedTotal) - before; got != 1024 {
		t.Errorf("uploaded delta = %v, want 1024", got)
	}

	errBefore := testutil.ToFloat64(FilesTotal.WithLabelValues("download", "error"))
	ObserveFile("download", 0, errors.New("boom"))
	if got := testutil.ToFloat64(FilesTotal.WithLabelValues("download", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

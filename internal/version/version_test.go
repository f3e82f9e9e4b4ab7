package version

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.Date == "" {
		t.Fatalf("build info must not have empty fields: %+v", info)
	}
	if info.Version != GetVersion() {
		t.Fatalf("GetVersion() = %q, Get().Version = %q", GetVersion(), info.Version)
	}
}

func TestBuildInfo_StringAndFields(t *testing.T) {
	info := BuildInfo{Version: "v1.2.0", Commit: "abc123", Date: "2024-05-01"}

	s := info.String()
	for _, part := range []string{"version=v1.2.0", "commit=abc123", "date=2024-05-01"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}

	fields := info.Fields()
	if fields["version"] != "v1.2.0" || fields["commit"] != "abc123" || fields["build_date"] != "2024-05-01" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector()); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "storefront_build_info" {
		t.Fatalf("unexpected families: %v", families)
	}

	metric := families[0].GetMetric()[0]
	if metric.GetGauge().GetValue() != 1 {
		t.Fatalf("build info gauge must be 1, got %v", metric.GetGauge().GetValue())
	}
	labels := map[string]string{}
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["version"] != GetVersion() {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

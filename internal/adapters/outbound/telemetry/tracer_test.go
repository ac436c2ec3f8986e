package telemetry

import (
	"strings"
	"testing"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestTracerConfigDefaults(t *testing.T) {
	d := TracerConfigDefaults()
	if d.ServiceName != "pool-state" {
		t.Errorf("expected ServiceName=pool-state, got %s", d.ServiceName)
	}
	if d.SampleRate != 1.0 {
		t.Errorf("expected SampleRate=1.0, got %v", d.SampleRate)
	}
}

package tracing

import (
	"strings"
	"testing"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantDesc string
		wantErr  bool
	}{
		{name: "always", strategy: SamplerAlways, wantDesc: "AlwaysOnSampler"},
		{name: "never", strategy: SamplerNever, wantDesc: "AlwaysOffSampler"},
		{name: "ratio 50%", strategy: SamplerRatio, ratio: 0.5, wantDesc: "TraceIDRatioBased{0.5}"},
		{name: "ratio 100%", strategy: SamplerRatio, ratio: 1.0, wantDesc: "AlwaysOnSampler"},
		{name: "negative ratio", strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{name: "ratio above one", strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{name: "unknown strategy", strategy: "sometimes", ratio: 0.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			desc := sampler.Description()
			if !strings.HasPrefix(desc, "ParentBased{") {
				t.Errorf("Description() = %q, want ParentBased wrapper", desc)
			}
			if !strings.Contains(desc, tt.wantDesc) {
				t.Errorf("Description() = %q, want it to contain %q", desc, tt.wantDesc)
			}
		})
	}
}

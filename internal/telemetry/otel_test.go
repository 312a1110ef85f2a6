package telemetry

import (
	"context"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "valid configuration",
			opts: Options{ServiceName: "test-service", ServiceVersion: "1.2.3", Endpoint: "localhost:4318", Insecure: true},
		},
		{
			name: "empty service name uses default",
			opts: Options{Endpoint: "localhost:4318", Insecure: true},
		},
		{
			name: "ratio sampling",
			opts: Options{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 0.25},
		},
		{
			name:    "missing endpoint",
			opts:    Options{ServiceName: "test-service"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InitTracer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tp == nil {
				return
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := Shutdown(shutdownCtx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 1, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 0.5, want: "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		got := sampler(tt.ratio).Description()
		if len(got) < len(tt.want) || got[:len(tt.want)] != tt.want {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}

func TestShutdown(t *testing.T) {
	t.Run("shutdown with nil provider", func(t *testing.T) {
		if err := Shutdown(context.Background(), nil); err != nil {
			t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
		}
	})

	t.Run("shutdown twice", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		if err := Shutdown(context.Background(), tp); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if err := Shutdown(context.Background(), tp); err != nil {
			t.Errorf("second Shutdown() error = %v", err)
		}
	})
}

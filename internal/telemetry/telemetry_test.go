package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "smbconn", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)

	prof := DefaultProfilingConfig()
	assert.False(t, prof.Enabled)
	assert.Contains(t, prof.ProfileTypes, "mutex_duration")
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
	assert.NotNil(t, Tracer())
}

func TestSetupDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, DefaultConfig(), DefaultProfilingConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	cfg := DefaultProfilingConfig()
	cfg.Enabled = true
	cfg.ProfileTypes = []string{"cpu", "heap"}

	_, err := InitProfiling(cfg)
	assert.ErrorContains(t, err, "unknown profile type: heap")
}

func TestParseProfileTypes(t *testing.T) {
	types, err := ParseProfileTypes(DefaultProfilingConfig().ProfileTypes)
	require.NoError(t, err)
	assert.Len(t, types, 4)
}

func TestSpansWithoutInit(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartConnSpan(ctx, SpanLookupOrCreate, "10.0.0.5:445", Share("public"), UID(1000))
	require.NotNil(t, newCtx)
	EndSpan(span, errors.New("no matching connection"))

	_, span = StartConnSpan(ctx, SpanTreeConnect, "")
	EndSpan(span, nil)

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
	require.NotPanics(t, func() {
		AddEvent(ctx, "conn.event")
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("boom"))
		SetAttributes(ctx, Result("hit"))
	})
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server", Server("10.0.0.5:445").Value.AsString(), "10.0.0.5:445"},
		{"Share", Share("public").Value.AsString(), "public"},
		{"SessionID", SessionID(7).Value.AsInt64(), int64(7)},
		{"TreeID", TreeID(0xFFFF).Value.AsInt64(), int64(0xFFFF)},
		{"Mode", Mode(0o644).Value.AsString(), "0644"},
		{"Exact", Exact(true).Value.AsBool(), true},
		{"UID", UID(1000).Value.AsInt64(), int64(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, AttrGeneration, string(Generation(2).Key))
	assert.Equal(t, AttrResult, string(Result("hit").Key))
}

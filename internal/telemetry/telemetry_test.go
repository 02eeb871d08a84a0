package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/salesflow/config"
)

// saveAndRestoreGlobalProviders 保存全局 provider，测试结束后恢复
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.ServiceName = "salesflow-test"
	cfg.SampleRate = 0.5

	p, err := Init(context.Background(), cfg, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.SampleRate = 1.0

	p, err := Init(context.Background(), cfg, "test", zaptest.NewLogger(t))
	require.NoError(t, err)

	// 没有 collector，导出失败可以接受，只要在超时内返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func initForTest(t *testing.T, cfg config.TelemetryConfig) *Providers {
	t.Helper()
	p, err := Init(context.Background(), cfg, "test", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestTracers_NoopWhenDisabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	otel.SetTracerProvider(noop.NewTracerProvider())

	p := initForTest(t, config.TelemetryConfig{Enabled: false})
	assert.False(t, p.Enabled())

	_, span := SessionTracer().Start(context.Background(), "db.session")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestSessionTracer_FollowsParentSampling(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.SampleRate = 0
	initForTest(t, cfg)

	// 根 span 按 0 采样率丢弃
	_, root := HTTPTracer().Start(context.Background(), "GET /api/v1/leads")
	assert.False(t, root.IsRecording())
	root.End()

	// 上游已采样时会话 span 跟随
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)
	_, span := SessionTracer().Start(ctx, "db.session")
	defer span.End()
	assert.True(t, span.IsRecording())
	assert.Equal(t, parent.TraceID(), span.SpanContext().TraceID())
}

func TestInit_TLSExporter(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.Insecure = false
	cfg.OTLPEndpoint = "collector.invalid:4317"

	p := initForTest(t, cfg)
	assert.True(t, p.Enabled())
}

package telemetry

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"digiget/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	errlist := []error{}
	if t.TracerProvider != nil {
		err := t.TracerProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	if t.MeterProvider != nil {
		err := t.MeterProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	return errors.Join(errlist...)
}

var (
	currentLock sync.Mutex
	current     Telemetry
)

// Shutdown flushes and stops the providers installed by Setup.
func Shutdown(ctx context.Context) error {
	currentLock.Lock()
	defer currentLock.Unlock()
	err := current.Shutdown(ctx)
	current = Telemetry{}
	return err
}

// searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it
// as a config to setup telemetry. without one, spans and metrics
// are collected but not exported.
func SetupFromEnv(ctx context.Context, serviceName string) error {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(serviceName)
	if err != nil {
		return err
	}

	tracerProvider, err := newTraceProvider(ctx, r, config)
	if err != nil {
		return err
	}
	meterProvider, err := newMetricProvider(ctx, r, config)
	if err != nil {
		return errors.Join(err, tracerProvider.Shutdown(ctx))
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	currentLock.Lock()
	defer currentLock.Unlock()
	current = Telemetry{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
	}
	return nil
}

var (
	testSetup    sync.Once
	testRecorder *tracetest.SpanRecorder
)

// SetupForTesting turns on debug logging and records every span in memory.
// it only sets up once per process, since tracers obtained before the
// first provider is installed keep delegating to that provider.
func SetupForTesting(t testing.TB) *tracetest.SpanRecorder {
	t.Helper()
	testSetup.Do(func() {
		InitSlog(true)
		testRecorder = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(trace.NewTracerProvider(
			trace.WithSpanProcessor(testRecorder),
		))
	})
	return testRecorder
}

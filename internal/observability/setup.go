package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/nvasquez/portfolio-chat/backend/internal/config"
)

// Provider bundles tracing and metrics for the chat router.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	chatLatencyHist    *promreg.HistogramVec
	chatTokensCounter  *promreg.CounterVec
	throttleCounter    *promreg.CounterVec
	fallbackCounter    *promreg.CounterVec
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("portfolio-chat-router"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{}
		switch {
		case strings.HasPrefix(endpoint, "http://"):
			endpoint = strings.TrimPrefix(endpoint, "http://")
			opts = append(opts, otlptracegrpc.WithInsecure())
		case strings.HasPrefix(endpoint, "https://"):
			endpoint = strings.TrimPrefix(endpoint, "https://")
		default:
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15}
		httpRequests := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "portfolio_chat",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		)
		httpLatency := promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: "portfolio_chat",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		)
		chatLatency := promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: "portfolio_chat",
				Name:      "chat_request_duration_seconds",
				Help:      "Duration of provider chat completions.",
				Buckets:   latencyBuckets,
			},
			[]string{"provider", "outcome"},
		)
		tokenCounter := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "portfolio_chat",
				Name:      "chat_tokens_total",
				Help:      "Total prompt/completion tokens processed.",
			},
			[]string{"provider", "type"},
		)
		throttled := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "portfolio_chat",
				Name:      "throttle_rejections_total",
				Help:      "Visitor requests rejected by admission control.",
			},
			[]string{"ceiling"},
		)
		fallbacks := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "portfolio_chat",
				Name:      "provider_fallbacks_total",
				Help:      "Provider attempts that fell through to the next candidate.",
			},
			[]string{"provider", "error_type"},
		)
		for _, c := range []promreg.Collector{httpRequests, httpLatency, chatLatency, tokenCounter, throttled, fallbacks} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
		provider.httpRequestCounter = httpRequests
		provider.httpRequestLatency = httpLatency
		provider.chatLatencyHist = chatLatency
		provider.chatTokensCounter = tokenCounter
		provider.throttleCounter = throttled
		provider.fallbackCounter = fallbacks
	}

	return provider, nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	if p.httpRequestCounter != nil {
		p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	}
	if p.httpRequestLatency != nil {
		p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
	}
}

func (p *Provider) RecordChat(provider, outcome string, duration time.Duration) {
	if p == nil || p.chatLatencyHist == nil {
		return
	}
	p.chatLatencyHist.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

func (p *Provider) RecordTokens(provider string, promptTokens, completionTokens int64) {
	if p == nil || p.chatTokensCounter == nil {
		return
	}
	if promptTokens > 0 {
		p.chatTokensCounter.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		p.chatTokensCounter.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

func (p *Provider) RecordThrottle(ceiling string) {
	if p == nil || p.throttleCounter == nil {
		return
	}
	p.throttleCounter.WithLabelValues(ceiling).Inc()
}

func (p *Provider) RecordFallback(provider, errType string) {
	if p == nil || p.fallbackCounter == nil {
		return
	}
	p.fallbackCounter.WithLabelValues(provider, errType).Inc()
}

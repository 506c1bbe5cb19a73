package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ErrPrometheusDisabled is returned when a Prometheus operation is requested
// but Init was not configured with a registry.
var ErrPrometheusDisabled = errors.New("prometheus metrics are not enabled")

// Push sends every collected metric to the configured Pushgateway. Grouping
// labels narrow the push group below the job. It is a no-op when no
// Pushgateway is configured.
func (p Providers) Push(ctx context.Context, grouping map[string]string) error {
	if p.pushgatewayURL == "" {
		return nil
	}

	if p.Registry == nil {
		return ErrPrometheusDisabled
	}

	job := p.pushJob
	if job == "" {
		job = defaultPushJob
	}

	pusher := push.New(p.pushgatewayURL, job).Gatherer(p.Registry)

	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	err := pusher.PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.pushgatewayURL, err)
	}

	return nil
}

// MetricsHandler returns an [http.Handler] serving the Prometheus scrape endpoint.
func (p Providers) MetricsHandler() (http.Handler, error) {
	if p.Registry == nil {
		return nil, ErrPrometheusDisabled
	}

	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}), nil
}

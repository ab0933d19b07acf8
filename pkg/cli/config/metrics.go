package config

import (
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
	"github.com/urfave/cli/v3"
)

// Metrics holds the CLI flag of the Prometheus endpoint
type Metrics struct {
	enabled bool
}

func (x *Metrics) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "metrics",
			Usage:       "Serve Prometheus metrics at /metrics",
			Category:    "Metrics",
			Value:       true,
			Sources:     cli.EnvVars("PUNCHCARD_METRICS"),
			Destination: &x.enabled,
		},
	}
}

// Configure returns the metrics registry, or nil when disabled
func (x *Metrics) Configure() *metrics.Metrics {
	if !x.enabled {
		return nil
	}
	return metrics.New()
}

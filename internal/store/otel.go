package store

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/dfmap/dfmap/internal/store"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

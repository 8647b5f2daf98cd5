package mq

import (
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("internal/storage/mq")

	// kTracer hooks into both clients so the kafka spans join the trace carried
	// in the record headers.
	kTracer = kotel.NewTracer()
)

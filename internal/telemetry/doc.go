// Package telemetry sets up OpenTelemetry tracing and metrics for stylerank.
//
// Spans are opened around every ranking run, export and retrieval call.
// With telemetry disabled the global no-op providers stay in place, so the
// instrumented packages never need to check whether it is on.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporters speak OTLP over gRPC (default) or HTTP/protobuf. Prometheus
// metrics are registered separately through promauto and served at /metrics.
package telemetry

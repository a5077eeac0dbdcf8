package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// UnaryServerInterceptor returns a gRPC interceptor that records request
// counts, durations and errors for each method. exporter may be nil when
// Prometheus export is disabled.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		method := info.FullMethod

		collector.RecordRequest(method)
		if exporter != nil {
			exporter.RecordRequest(method)
		}

		resp, err := handler(ctx, req)

		if exporter != nil {
			exporter.RecordDuration(method, time.Since(start).Seconds())
		}
		if err != nil {
			collector.RecordError(method)
			if exporter != nil {
				exporter.RecordError(method)
			}
		}

		return resp, err
	}
}

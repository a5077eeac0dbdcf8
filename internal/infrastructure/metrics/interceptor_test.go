package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/halloran/castellan/pkg/cache/memorycache"
)

// testExporter is a shared exporter instance for all tests to avoid
// duplicate Prometheus metric registration errors.
var (
	testExporter     *PrometheusExporter
	testExporterOnce sync.Once
)

func getTestExporter(collector *Collector) *PrometheusExporter {
	testExporterOnce.Do(func() {
		testExporter = NewPrometheusExporter(collector)
	})
	return testExporter
}

func TestUnaryServerInterceptor_RecordsRequest(t *testing.T) {
	collector := NewCollector()

	interceptor := UnaryServerInterceptor(collector, nil)

	// Create mock handler that succeeds
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/TestMethod",
	}

	// Call interceptor
	_, err := interceptor(context.Background(), "request", info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Check that request was recorded
	grpcMetrics := collector.GetGRPCMetrics()
	if count, ok := grpcMetrics.RequestCounts["/test.Service/TestMethod"]; !ok || count != 1 {
		t.Errorf("expected request count 1 for /test.Service/TestMethod, got %d", count)
	}
}

func TestUnaryServerInterceptor_RecordsError(t *testing.T) {
	collector := NewCollector()

	interceptor := UnaryServerInterceptor(collector, nil)

	// Create mock handler that returns an error
	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, expectedErr
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/ErrorMethod",
	}

	// Call interceptor
	_, err := interceptor(context.Background(), "request", info, handler)
	if err != expectedErr {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}

	// Check that error was recorded
	grpcMetrics := collector.GetGRPCMetrics()
	if count, ok := grpcMetrics.ErrorCounts["/test.Service/ErrorMethod"]; !ok || count != 1 {
		t.Errorf("expected error count 1 for /test.Service/ErrorMethod, got %d", count)
	}
}

func TestUnaryServerInterceptor_NoErrorNotRecorded(t *testing.T) {
	collector := NewCollector()

	interceptor := UnaryServerInterceptor(collector, nil)

	// Create mock handler that succeeds
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/SuccessMethod",
	}

	// Call interceptor
	_, err := interceptor(context.Background(), "request", info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Check that no error was recorded
	grpcMetrics := collector.GetGRPCMetrics()
	if count, ok := grpcMetrics.ErrorCounts["/test.Service/SuccessMethod"]; ok && count > 0 {
		t.Errorf("expected no error count for /test.Service/SuccessMethod, got %d", count)
	}
}

func TestUnaryServerInterceptor_MultipleRequests(t *testing.T) {
	collector := NewCollector()

	interceptor := UnaryServerInterceptor(collector, nil)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/MultiMethod",
	}

	// Call interceptor multiple times
	for i := 0; i < 5; i++ {
		_, err := interceptor(context.Background(), "request", info, handler)
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}

	// Check that all requests were recorded
	grpcMetrics := collector.GetGRPCMetrics()
	if count, ok := grpcMetrics.RequestCounts["/test.Service/MultiMethod"]; !ok || count != 5 {
		t.Errorf("expected request count 5, got %d", count)
	}
}

func TestUnaryServerInterceptor_WithPrometheusExporter(t *testing.T) {
	collector := NewCollector()
	exporter := getTestExporter(collector)

	interceptor := UnaryServerInterceptor(collector, exporter)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/PrometheusMethod",
	}

	// Call interceptor
	_, err := interceptor(context.Background(), "request", info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify collector recorded the request
	grpcMetrics := collector.GetGRPCMetrics()
	if count, ok := grpcMetrics.RequestCounts["/test.Service/PrometheusMethod"]; !ok || count != 1 {
		t.Errorf("expected request count 1, got %d", count)
	}
}

func TestCollector_CacheMetricsFlow(t *testing.T) {
	c, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  1 << 20,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	collector := NewCollector()
	collector.SetCache(c)

	ctx := context.Background()
	if _, found := c.Get(ctx, "missing"); found {
		t.Fatal("did not expect a hit on an empty cache")
	}
	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if _, found := c.Get(ctx, "k"); !found {
		t.Fatal("expected a hit after set")
	}

	cm := collector.GetCacheMetrics()
	if cm.Hits != 1 {
		t.Errorf("hits = %d, want 1", cm.Hits)
	}
	if cm.Misses != 1 {
		t.Errorf("misses = %d, want 1", cm.Misses)
	}
	if cm.KeysCurrent != 1 {
		t.Errorf("keys = %d, want 1", cm.KeysCurrent)
	}
}

func TestCollector_RecordCheck(t *testing.T) {
	collector := NewCollector()

	collector.RecordCheck("granted", "base_permission")
	collector.RecordCheck("granted", "base_permission")
	collector.RecordCheck("denied", "")
	collector.RecordCheckDuration("granted", 0.002)

	checkMetrics := collector.GetCheckMetrics()
	if count := checkMetrics.Counts["granted|base_permission"]; count != 2 {
		t.Errorf("granted|base_permission count = %d, want 2", count)
	}
	if count := checkMetrics.Counts["denied|"]; count != 1 {
		t.Errorf("denied count = %d, want 1", count)
	}
	if total := checkMetrics.TotalDurationSeconds["granted"]; total != 0.002 {
		t.Errorf("granted duration = %v, want 0.002", total)
	}
}

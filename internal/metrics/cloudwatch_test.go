package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"upwrdfin/logger"
)

func captureCloudWatch(t *testing.T, interval time.Duration, base time.Time) *[][]cwtypes.MetricDatum {
	t.Helper()

	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "UpwrdFin"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = interval
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	timeNow = func() time.Time { return base }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	baseTime := time.Now()
	batches := captureCloudWatch(t, 50*time.Millisecond, baseTime)

	metric := Metric{Component: "feed", Name: "pull_success", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	publishMetricDatum(metric, 2)

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	datum := (*batches)[0][0]
	if datum.MetricName == nil || *datum.MetricName != "pull_success" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	baseTime := time.Now()
	batches := captureCloudWatch(t, 50*time.Millisecond, baseTime)

	metric := Metric{Component: "feed", Name: "pull_success", Timestamp: baseTime}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	publishMetricDatum(metric, 2)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if v := (*batches)[1][0].Value; v == nil || *v != 2 {
		t.Fatalf("unexpected metric value: %v", v)
	}
}

func TestPublishMetricDatumDimensions(t *testing.T) {
	batches := captureCloudWatch(t, time.Minute, time.Now())

	publishMetricDatum(Metric{
		Component: "feed",
		Name:      "ticks_applied",
		Fields:    logger.Fields{"source": "stream", "records": 4, "unit": "count"},
	}, 4)

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	dims := map[string]string{}
	for _, d := range (*batches)[0][0].Dimensions {
		dims[*d.Name] = *d.Value
	}
	if dims["component"] != "feed" || dims["source"] != "stream" {
		t.Fatalf("unexpected dimensions: %v", dims)
	}
	if _, ok := dims["records"]; ok {
		t.Fatalf("numeric fields must not become dimensions: %v", dims)
	}
	if _, ok := dims["unit"]; ok {
		t.Fatalf("unit must not become a dimension: %v", dims)
	}
}

func TestPublishSkippedWithoutClient(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(context.Context, *cloudWatchState, []cwtypes.MetricDatum) { called = true }
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "feed", Name: "x"}, 1)
	if called {
		t.Fatalf("publish should be skipped without a client")
	}
}

func TestRenderDashboardSubstitutes(t *testing.T) {
	body, err := renderDashboard("Staging", "eu-west-1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(body, `"UpwrdFin"`) || strings.Contains(body, `"ap-south-1"`) {
		t.Fatalf("template placeholders left in body")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("rendered dashboard is not JSON: %v", err)
	}
}

func TestToFloat64(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{3, 3, true},
		{int64(5), 5, true},
		{float32(1.5), 1.5, true},
		{true, 1, true},
		{"7", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := toFloat64(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("toFloat64(%v) = %v, %v", tc.in, got, ok)
		}
	}
}

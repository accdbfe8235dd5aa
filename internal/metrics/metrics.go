// Registers:
//
//	#upwrdfin_pulls_total{kind,result}
//	#upwrdfin_stream_connects_total, #upwrdfin_stream_reconnects_total
//	#upwrdfin_stream_frames_total{result}
//	#upwrdfin_ticks_applied_total{source}
//	#upwrdfin_feed_live, #upwrdfin_stream_open
//	#upwrdfin_scrape_requests_total{result}
//	#upwrdfin_signup_relays_total{result}
//	#go_* and process_* system metrics
//
// Exposed through Handler on the API server's /metrics route.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"upwrdfin/logger"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	pullsTotal       *prometheus.CounterVec
	streamConnects   prometheus.Counter
	streamReconnects prometheus.Counter
	streamFrames     *prometheus.CounterVec
	ticksApplied     *prometheus.CounterVec
	feedLive         prometheus.Gauge
	streamOpen       prometheus.Gauge
	scrapeRequests   *prometheus.CounterVec
	signupRelays     *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		pullsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upwrdfin_pulls_total",
				Help: "Number of upstream pull requests by kind and result",
			},
			[]string{"kind", "result"},
		)
		streamConnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upwrdfin_stream_connects_total",
			Help: "Number of successful push-stream subscriptions",
		})
		streamReconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upwrdfin_stream_reconnects_total",
			Help: "Number of push-stream closures followed by a reconnect",
		})
		streamFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upwrdfin_stream_frames_total",
				Help: "Push-stream frames by outcome",
			},
			[]string{"result"},
		)
		ticksApplied = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upwrdfin_ticks_applied_total",
				Help: "Instrument updates merged into the held collection",
			},
			[]string{"source"},
		)
		feedLive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upwrdfin_feed_live",
			Help: "1 when the held collection reflects live data",
		})
		streamOpen = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upwrdfin_stream_open",
			Help: "1 while the push stream is subscribed",
		})
		scrapeRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upwrdfin_scrape_requests_total",
				Help: "Scrape proxy requests by result",
			},
			[]string{"result"},
		)
		signupRelays = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upwrdfin_signup_relays_total",
				Help: "Signup submissions relayed by result",
			},
			[]string{"result"},
		)

		registry.MustRegister(
			pullsTotal, streamConnects, streamReconnects, streamFrames,
			ticksApplied, feedLive, streamOpen, scrapeRequests, signupRelays,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPull counts one upstream pull of kind ("ticks", "indices", ...).
func RecordPull(log *logger.Log, kind string, records int, err error) {
	res := result(err)
	if pullsTotal != nil {
		pullsTotal.WithLabelValues(kind, res).Inc()
	}
	EmitMetric(log, "feed", "pull_"+res, 1, "counter", logger.Fields{"kind": kind, "records": records})
}

func RecordStreamOpen(log *logger.Log) {
	if streamConnects != nil {
		streamConnects.Inc()
		streamOpen.Set(1)
	}
	EmitMetric(log, "psx_stream", "stream_connects", 1, "counter", nil)
}

func RecordStreamClosed(log *logger.Log) {
	if streamReconnects != nil {
		streamReconnects.Inc()
		streamOpen.Set(0)
	}
	EmitMetric(log, "psx_stream", "stream_reconnects", 1, "counter", nil)
}

// RecordFrame counts a push-stream frame as "applied", "ignored" or "discarded".
func RecordFrame(outcome string) {
	if streamFrames != nil {
		streamFrames.WithLabelValues(outcome).Inc()
	}
}

func RecordTicksApplied(log *logger.Log, source string, n int) {
	if n <= 0 {
		return
	}
	if ticksApplied != nil {
		ticksApplied.WithLabelValues(source).Add(float64(n))
	}
	EmitMetric(log, "feed", "ticks_applied", n, "counter", logger.Fields{"source": source})
}

func SetLive(live bool) {
	if feedLive == nil {
		return
	}
	if live {
		feedLive.Set(1)
	} else {
		feedLive.Set(0)
	}
}

func RecordScrape(log *logger.Log, err error) {
	res := result(err)
	if scrapeRequests != nil {
		scrapeRequests.WithLabelValues(res).Inc()
	}
	EmitMetric(log, "scrape", "scrape_"+res, 1, "counter", nil)
}

func RecordSignup(log *logger.Log, err error) {
	res := result(err)
	if signupRelays != nil {
		signupRelays.WithLabelValues(res).Inc()
	}
	EmitMetric(log, "signup", "signup_relay_"+res, 1, "counter", nil)
}

package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Post outcome labels for quotebot_posts_total.
const (
	ResultPosted        = "posted"
	ResultNoQuotes      = "no_quotes"
	ResultPublishFailed = "publish_failed"
	ResultStorageError  = "storage_error"
	ResultInvalid       = "invalid"
)

// Metrics holds the Prometheus collectors updated by QuoteService.
type Metrics struct {
	posts   *prometheus.CounterVec
	resets  prometheus.Counter
	added   prometheus.Counter
	publish *prometheus.HistogramVec
}

// NewMetrics registers the quotebot collectors with reg.
// A nil reg uses the default registerer, which /-/metrics serves.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	f := promauto.With(reg)

	return &Metrics{
		posts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotebot_posts_total",
			Help: "Post attempts by outcome.",
		}, []string{"result"}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "quotebot_selection_resets_total",
			Help: "Times a rotation scope was exhausted and reset.",
		}),
		added: f.NewCounter(prometheus.CounterOpts{
			Name: "quotebot_quotes_added_total",
			Help: "Quotes appended to the collection.",
		}),
		publish: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotebot_publish_duration_seconds",
			Help:    "Latency of publisher calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observePost(result string) {
	if m == nil {
		return
	}

	m.posts.WithLabelValues(result).Inc()
}

func (m *Metrics) observeReset() {
	if m == nil {
		return
	}

	m.resets.Inc()
}

func (m *Metrics) observeAdded() {
	if m == nil {
		return
	}

	m.added.Inc()
}

func (m *Metrics) observePublish(ok bool, seconds float64) {
	if m == nil {
		return
	}

	outcome := "ok"
	if !ok {
		outcome = "error"
	}

	m.publish.WithLabelValues(outcome).Observe(seconds)
}

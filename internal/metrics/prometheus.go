package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qabot_questions_total",
			Help: "Questions processed, by outcome",
		},
		[]string{"outcome"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qabot_search_duration_seconds",
			Help:    "Similar-question search duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	SearchSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qabot_search_similarity",
			Help:    "Similarity of the best match per answered search",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qabot_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qabot_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CrawlPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qabot_crawl_pages_total",
			Help: "Channel history pages fetched",
		},
	)

	EntriesCollected = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qabot_crawl_entries_collected",
			Help:    "Q&A entries collected per crawl",
			Buckets: []float64{0, 10, 50, 100, 200, 500, 1000},
		},
	)

	SocketReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qabot_socket_reconnects_total",
			Help: "Socket-mode reconnection attempts",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qabot_events_total",
			Help: "Inbound realtime events, by type",
		},
		[]string{"type"},
	)

	ReactionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qabot_reaction_failures_total",
			Help: "Reaction add/remove calls that failed",
		},
	)
)

func Init() {
	prometheus.MustRegister(QuestionsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchSimilarity)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CrawlPages)
	prometheus.MustRegister(EntriesCollected)
	prometheus.MustRegister(SocketReconnects)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(ReactionFailures)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

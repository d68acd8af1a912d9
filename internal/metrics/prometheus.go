package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdfchat_query_duration_seconds",
			Help:    "Chat pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfchat_query_total",
			Help: "Total number of chat queries processed",
		},
		[]string{"status", "mode"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfchat_uploads_total",
			Help: "Total number of PDF uploads processed",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdfchat_chunks_indexed_total",
			Help: "Total chunks upserted into the vector index",
		},
	)

	StreamFragments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdfchat_stream_fragments_total",
			Help: "Total answer fragments relayed to clients",
		},
	)

	EmbeddingCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfchat_embedding_cache_total",
			Help: "Query-embedding cache lookups",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(StreamFragments)
	prometheus.MustRegister(EmbeddingCacheHits)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

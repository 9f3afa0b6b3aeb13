package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

type RAGMetrics struct {
	registry *prometheus.Registry

	ingestTotal      *prometheus.CounterVec
	ingestDuration   *prometheus.HistogramVec
	ingestInFlight   prometheus.Gauge
	ingestChunks     prometheus.Histogram
	retrieveTotal    *prometheus.CounterVec
	retrieveDuration *prometheus.HistogramVec
	retrievedChunks  prometheus.Histogram
}

func NewRAGMetrics(service string) *RAGMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "readmate",
			Subsystem:   "ingest",
			Name:        "total",
			Help:        "Total ingest runs by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "readmate",
			Subsystem:   "ingest",
			Name:        "duration_seconds",
			Help:        "Ingest duration in seconds by outcome.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "readmate",
			Subsystem:   "ingest",
			Name:        "in_flight",
			Help:        "Number of in-flight ingest runs.",
			ConstLabels: constLabels,
		},
	)
	ingestChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "readmate",
			Subsystem:   "ingest",
			Name:        "chunks",
			Help:        "Chunks per successfully ingested document.",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
			ConstLabels: constLabels,
		},
	)
	retrieveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "readmate",
			Subsystem:   "retrieve",
			Name:        "total",
			Help:        "Total retrievals by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	retrieveDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "readmate",
			Subsystem:   "retrieve",
			Name:        "duration_seconds",
			Help:        "Retrieval duration in seconds by outcome.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	retrievedChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "readmate",
			Subsystem:   "retrieve",
			Name:        "chunks",
			Help:        "Distribution of returned chunks per successful retrieval.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		ingestTotal,
		ingestDuration,
		ingestInFlight,
		ingestChunks,
		retrieveTotal,
		retrieveDuration,
		retrievedChunks,
	)

	return &RAGMetrics{
		registry:         registry,
		ingestTotal:      ingestTotal,
		ingestDuration:   ingestDuration,
		ingestInFlight:   ingestInFlight,
		ingestChunks:     ingestChunks,
		retrieveTotal:    retrieveTotal,
		retrieveDuration: retrieveDuration,
		retrievedChunks:  retrievedChunks,
	}
}

func (m *RAGMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RAGMetrics) StartIngest() {
	m.ingestInFlight.Inc()
}

func (m *RAGMetrics) FinishIngest(duration time.Duration, chunks int, err error) {
	m.ingestInFlight.Dec()
	status := outcome(err)
	m.ingestTotal.WithLabelValues(status).Inc()
	m.ingestDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		m.ingestChunks.Observe(float64(chunks))
	}
}

func (m *RAGMetrics) ObserveRetrieve(duration time.Duration, chunks int, err error) {
	status := outcome(err)
	m.retrieveTotal.WithLabelValues(status).Inc()
	m.retrieveDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		m.retrievedChunks.Observe(float64(chunks))
	}
}

// outcome keeps label cardinality bounded to the error taxonomy.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCorruptBundle):
		return "corrupt"
	case errors.Is(err, domain.ErrIngestFailed):
		return "ingest_failed"
	case errors.Is(err, domain.ErrTemporary):
		return "temporary"
	default:
		return "error"
	}
}

// InstrumentIngestor records every ingest run passing through ingestor.
func (m *RAGMetrics) InstrumentIngestor(ingestor ports.DocumentIngestor) ports.DocumentIngestor {
	return &instrumentedIngestor{next: ingestor, metrics: m}
}

// InstrumentRetriever records every retrieval passing through retriever.
func (m *RAGMetrics) InstrumentRetriever(retriever ports.HybridRetriever) ports.HybridRetriever {
	return &instrumentedRetriever{next: retriever, metrics: m}
}

type instrumentedIngestor struct {
	next    ports.DocumentIngestor
	metrics *RAGMetrics
}

func (i *instrumentedIngestor) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.BundleMeta, error) {
	start := time.Now()
	i.metrics.StartIngest()
	meta, err := i.next.Ingest(ctx, req)
	chunks := 0
	if meta != nil {
		chunks = meta.ChunkCount
	}
	i.metrics.FinishIngest(time.Since(start), chunks, err)
	return meta, err
}

type instrumentedRetriever struct {
	next    ports.HybridRetriever
	metrics *RAGMetrics
}

func (r *instrumentedRetriever) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error) {
	start := time.Now()
	result, err := r.next.Retrieve(ctx, req)
	r.metrics.ObserveRetrieve(time.Since(start), result.Len(), err)
	return result, err
}

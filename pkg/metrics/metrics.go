package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts answered /query requests by source (AI, fallback).
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_queries_total",
			Help: "Total number of answered queries",
		},
		[]string{"source"},
	)

	// RejectedTotal counts /query requests rejected before resolution.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_queries_rejected_total",
			Help: "Total number of rejected queries",
		},
		[]string{"reason"}, // rate_limited, invalid
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdesk_query_duration_seconds",
			Help:    "Time to answer a query",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_llm_requests_total",
			Help: "Total number of generation API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdesk_llm_request_duration_seconds",
			Help:    "Generation API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_llm_tokens_total",
			Help: "Total number of tokens reported by generation APIs",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	// MemoryCacheLookups counts resolver-local cache lookups by result (hit, miss).
	MemoryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_memory_cache_lookups_total",
			Help: "Resolver in-memory cache lookups",
		},
		[]string{"result"},
	)

	MemoryCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdesk_memory_cache_entries",
			Help: "Entries held by the resolver in-memory cache",
		},
	)

	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "askdesk_fallbacks_total",
			Help: "Questions answered with a static fallback phrase",
		},
	)

	RateLimitClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdesk_rate_limit_clients",
			Help: "Client windows tracked by the rate limiter",
		},
	)
)

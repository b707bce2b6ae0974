package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	parseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rcal_query_parse_total",
			Help: "Total number of EVT_QUERY/EVI_QUERY strings parsed.",
		},
	)

	parseTimeoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rcal_query_parse_timeout_total",
			Help: "Total number of query parses aborted by ICAL_PARSER_TIMEOUT_MS.",
		},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rcal_query_cache_hits_total",
			Help: "Total number of Cache.Parse calls served from the cached AST.",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rcal_query_cache_misses_total",
			Help: "Total number of Cache.Parse calls that had to parse and populate the cache.",
		},
	)
)

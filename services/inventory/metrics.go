package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricToolDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_tool_downloads_total",
			Help: "Tool fetches by final status.",
		}, []string{"status"})

	metricCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_tool_cache_hits_total",
			Help: "Tools served from the content addressed cache.",
		})

	metricDownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_tool_download_bytes_total",
			Help: "Bytes downloaded for tools.",
		})
)

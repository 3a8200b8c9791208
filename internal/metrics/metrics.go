package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakly_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speakly_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakly_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakly_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"kind"}, // "text", "file" or "captioned"
	)

	ChatsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakly_chats_created_total",
			Help: "Total chats created",
		},
		[]string{"kind"}, // "direct" or "group"
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakly_search_queries_total",
			Help: "Total contact search queries",
		},
	)

	FilesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakly_files_uploaded_total",
			Help: "Total attachment uploads",
		},
	)
)

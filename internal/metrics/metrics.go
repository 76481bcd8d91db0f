package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhub_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studyhub_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyhub_websocket_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	RoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhub_room_joins_total",
			Help: "Total room join attempts",
		},
		[]string{"outcome"}, // "joined" or "denied"
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_messages_sent_total",
			Help: "Total chat messages persisted and broadcast",
		},
	)

	ReactionsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_reactions_applied_total",
			Help: "Total reaction increments",
		},
	)

	TypingEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_typing_events_total",
			Help: "Total typing notifications relayed",
		},
	)

	PinToggles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_pin_toggles_total",
			Help: "Total pin state changes",
		},
	)

	// Gamification metrics
	StudySessionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_study_sessions_recorded_total",
			Help: "Total study sessions recorded",
		},
	)

	StreakLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studyhub_streak_length_days",
			Help:    "Streak length observed after each recorded session",
			Buckets: []float64{1, 2, 3, 5, 7, 14, 30, 60, 100},
		},
	)
)

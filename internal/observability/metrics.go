// Package observability provides structured logging and Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// MessageThroughput counts accepted messages per room class and kind.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_message_throughput_total",
		Help: "Total number of messages accepted",
	}, []string{"room_class", "kind"})

	// MessagesRejected counts rejected sends by gate.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_messages_rejected_total",
		Help: "Total number of rejected send attempts by gate",
	}, []string{"scope"})

	// AbuseStrikes counts recorded abuse strikes by scope.
	AbuseStrikes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_abuse_strikes_total",
		Help: "Total number of abuse strikes recorded",
	}, []string{"scope"})

	// AutoMutes counts auto-mutes applied when the strike threshold trips.
	AutoMutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vixogram_auto_mutes_total",
		Help: "Total number of automatic mutes applied",
	})

	// ModerationActions counts LLM moderation verdicts.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_moderation_actions_total",
		Help: "Total number of moderation verdicts by action",
	}, []string{"action"})

	// WebSocketConnectionsTotal is the gauge of active WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vixogram_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketRoomConnections is the gauge of connections per room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vixogram_websocket_room_connections",
		Help: "Number of WebSocket connections per room",
	}, []string{"room"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// NotificationsDelivered counts notification deliveries by channel.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_notifications_delivered_total",
		Help: "Total notifications delivered by channel (live, persisted, push)",
	}, []string{"channel"})

	// RetentionTrimmed counts messages deleted by retention trimming.
	RetentionTrimmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vixogram_retention_trimmed_messages_total",
		Help: "Total messages deleted by per-room retention trimming",
	})

	// CallEvents counts call signalling events by type and action.
	CallEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vixogram_call_events_total",
		Help: "Total call signalling events by call type and action",
	}, []string{"call_type", "action"})
)

package webhookingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricWebhooksAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revu_webhooks_accepted_total",
		Help: "Webhook events normalized and enqueued for review.",
	}, []string{"provider"})
	metricWebhooksIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revu_webhooks_ignored_total",
		Help: "Webhook events that do not represent a reviewable action.",
	}, []string{"provider"})
	metricWebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revu_webhooks_rejected_total",
		Help: "Webhook events that failed signature verification.",
	}, []string{"provider"})
)

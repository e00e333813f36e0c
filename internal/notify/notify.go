// Package notify delivers safety alerts. Delivery is best-effort,
// multi-channel, and carries no ordering or delivery guarantee; callers on
// the safety-critical path log failures and keep going.
package notify

import (
	"context"
	"log/slog"
)

// Priority ranks how urgently a message should be surfaced.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Channel subjects. Channels map onto NATS subjects; downstream bridges
// (push, SMS, pager) subscribe to the slice they care about.
const (
	ChannelSupervisors    = "safety.supervisors"
	ChannelSafetyOfficers = "safety.officers"
	ChannelEmergency      = "safety.emergency"
)

// ChannelWorker returns the direct channel for one worker.
func ChannelWorker(workerID string) string {
	return "safety.worker." + workerID
}

// ChannelSite returns the alert channel for one site.
func ChannelSite(siteID string) string {
	return "safety.site." + siteID
}

// Message is one notification request.
type Message struct {
	Channel        string   `json:"channel"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Priority       Priority `json:"priority"`
	WorkerID       string   `json:"worker_id,omitempty"`
	SiteID         string   `json:"site_id,omitempty"`
	EntrySessionID string   `json:"entry_session_id,omitempty"`
}

// Gateway is the interface for dispatching notifications.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// BestEffort sends msg and logs any failure instead of returning it.
// Notification transport must never block scheduling decisions.
func BestEffort(ctx context.Context, gw Gateway, logger *slog.Logger, msg Message) {
	if err := gw.Send(ctx, msg); err != nil {
		logger.Warn("notification send failed",
			"channel", msg.Channel, "priority", string(msg.Priority), "err", err)
	}
}

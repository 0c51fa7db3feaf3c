// Package admission decides whether a media-button wake-up needs a brief
// foreground promotion.
//
// A backgrounded process that answers a media-button signal must hold
// foreground status for the signal to be accepted. When no session is active
// and no UI is attached, the guard promotes the process with a placeholder
// notification and demotes it right away.
package admission

import (
	zlog "github.com/rs/zerolog/log"
)

// Decision is the outcome of an admission check.
type Decision int

const (
	DecisionForeground      Decision = iota // Session already active, nothing to do
	DecisionUIAttached                      // A UI satisfies the requirement
	DecisionPromoted                        // Promoted then demoted
	DecisionPromotionFailed                 // Promotion was attempted and failed
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionForeground:
		return "foreground"
	case DecisionUIAttached:
		return "ui_attached"
	case DecisionPromoted:
		return "promoted"
	case DecisionPromotionFailed:
		return "promotion_failed"
	default:
		return "unknown"
	}
}

// Notification is the content-free placeholder shown during promotion.
type Notification struct {
	ID        int
	ChannelID string
}

// SessionProbe reports whether the media session is active.
type SessionProbe interface {
	SessionActive() bool
}

// UIProbe reports whether a UI is attached and reachable.
type UIProbe interface {
	HasAttachedUI() bool
}

// Host performs the foreground promotion.
type Host interface {
	StartForeground(n Notification) error
	StopSelf()
}

// Guard performs the admission check.
type Guard struct {
	ui           UIProbe
	host         Host
	notification Notification
}

// New creates a new guard.
func New(ui UIProbe, host Host, notification Notification) *Guard {
	return &Guard{
		ui:           ui,
		host:         host,
		notification: notification,
	}
}

// Admit runs the check. session is nil when no manager exists.
func (g *Guard) Admit(session SessionProbe) Decision {
	if session != nil && session.SessionActive() {
		return DecisionForeground
	}

	if g.ui != nil && g.ui.HasAttachedUI() {
		zlog.Debug().Msg("admission: UI attached, skipping foreground promotion")
		return DecisionUIAttached
	}

	if err := g.host.StartForeground(g.notification); err != nil {
		zlog.Error().Msgf("admission: failed to start foreground: %v", err)
		return DecisionPromotionFailed
	}
	g.host.StopSelf()

	zlog.Info().Msgf("admission: promoted to foreground and stopped: notification_id=%d channel=%s",
		g.notification.ID, g.notification.ChannelID)
	return DecisionPromoted
}

// Package reload triggers registry rebuilds: from a Redis pub/sub channel,
// from catalog file changes, and on a schedule.
package reload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
)

// Reloader rebuilds the registry and clears cached chains
type Reloader interface {
	Reload(ctx context.Context) (*registry.Snapshot, error)
}

// PubSub is the subset of the Redis client used for reload broadcasts
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string, handler func(payload string)) error
}

// Message is the payload broadcast on the reload channel
type Message struct {
	Reason string    `json:"reason"`
	Origin string    `json:"origin"`
	SentAt time.Time `json:"sent_at"`
}

// Publish asks every subscribed instance to reload
func Publish(ctx context.Context, ps PubSub, channel, reason string) error {
	origin, _ := os.Hostname()
	payload, err := json.Marshal(Message{Reason: reason, Origin: origin, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := ps.Publish(ctx, channel, string(payload)); err != nil {
		return fmt.Errorf("publishing reload: %w", err)
	}
	return nil
}

// Subscriber reloads whenever a message arrives on the reload channel
type Subscriber struct {
	ps       PubSub
	channel  string
	reloader Reloader
	timeout  time.Duration
}

// NewSubscriber creates a subscriber
func NewSubscriber(ps PubSub, channel string, reloader Reloader) *Subscriber {
	return &Subscriber{ps: ps, channel: channel, reloader: reloader, timeout: 30 * time.Second}
}

// Run subscribes and blocks until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.ps.Subscribe(ctx, s.channel, func(payload string) { s.handle(ctx, payload) }); err != nil {
		return err
	}

	log.WithFields(log.Fields{"event": "reload_subscribed", "channel": s.channel}).Info("Listening for reload broadcasts")
	<-ctx.Done()
	return nil
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		// Bare payloads still trigger a reload
		msg.Reason = payload
	}

	reloadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.reloader.Reload(reloadCtx)
	fields := log.Fields{"event": "reload_received", "reason": msg.Reason, "origin": msg.Origin}
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Reload failed, keeping previous registry")
		return
	}
	fields["generation"] = snap.Generation()
	log.WithFields(fields).Info("Registry reloaded from broadcast")
}

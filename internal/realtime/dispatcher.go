package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/observability"
)

const lastEventTTL = 30 * time.Minute

// Directory resolves channel membership for scoped fan-out.
type Directory interface {
	ChannelMembers(channelID string) ([]string, error)
}

// Presence flips the session-independent online flag in the entity store.
type Presence interface {
	SetPresence(ctx context.Context, userID string, online bool) (models.User, error)
}

// Dispatcher fans events out to live sessions. Delivery is best-effort,
// at-most-once; a failed send is treated as an implicit disconnect and
// resolved by session teardown, never surfaced to the publishing caller.
type Dispatcher struct {
	registry  *Registry
	directory Directory
	presence  Presence

	redis       *redis.Client
	redisRelay  string
	redisCache  string
	natsConn    *nats.Conn
	natsSubject string
	nodeID      string

	publishMu sync.Mutex
	logger    zerolog.Logger
}

// relayEnvelope carries an event between nodes over Redis/NATS.
type relayEnvelope struct {
	Source string    `json:"source"`
	Event  Event     `json:"event"`
	Scope  string    `json:"scope,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// NewDispatcher constructs a dispatcher. redisClient and natsConn may be nil;
// the cross-node relay and last-event cache are then disabled.
func NewDispatcher(registry *Registry, directory Directory, presence Presence, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Dispatcher {
	relayChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		relayChannel = channelBase + ":events"
		cachePrefix = channelBase + ":events:last"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &Dispatcher{
		registry:    registry,
		directory:   directory,
		presence:    presence,
		redis:       redisClient,
		redisRelay:  relayChannel,
		redisCache:  cachePrefix,
		natsConn:    natsConn,
		natsSubject: natsSubject,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Start launches the cross-node relay consumers when configured.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.redis != nil && d.redisRelay != "" {
		go d.consumeRedis(ctx)
	}
	if d.natsConn != nil && d.natsSubject != "" {
		d.consumeNATS(ctx)
	}
}

// Attach registers the session for the user, marks them online and announces
// the presence change to all remaining sessions.
func (d *Dispatcher) Attach(ctx context.Context, userID string, session Session) {
	d.registry.Register(userID, session)
	observability.SessionsConnected().Inc()
	observability.ActiveSessions().Set(float64(d.registry.Len()))

	user, err := d.presence.SetPresence(ctx, userID, true)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user online")
	}

	d.Publish(ctx, Event{
		Kind: EventUserOnline,
		Payload: map[string]interface{}{
			"user_id":  userID,
			"username": user.Username,
		},
	}, ScopeAll())
}

// Detach unregisters the session if it is still current, marks the user
// offline and announces the change. Idempotent: detaching an already-absent
// session is a no-op.
func (d *Dispatcher) Detach(ctx context.Context, userID string, session Session) {
	if !d.registry.Unregister(userID, session) {
		return
	}
	if session != nil {
		session.Close()
	}
	observability.ActiveSessions().Set(float64(d.registry.Len()))

	user, err := d.presence.SetPresence(ctx, userID, false)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user offline")
	}

	d.Publish(ctx, Event{
		Kind: EventUserOffline,
		Payload: map[string]interface{}{
			"user_id":  userID,
			"username": user.Username,
		},
	}, ScopeAll())
}

// Publish delivers the event to every session in scope and relays it to peer
// nodes. Events published for a given session arrive in publish order.
func (d *Dispatcher) Publish(ctx context.Context, event Event, scope Scope) {
	d.publishMu.Lock()
	d.deliver(ctx, event, scope)
	d.publishMu.Unlock()

	d.cacheLastEvent(ctx, event)
	if err := d.relay(ctx, event, scope); err != nil {
		d.logger.Warn().Err(err).Str("kind", event.Kind).Msg("failed to relay event")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event, scope Scope) {
	targets := d.resolve(scope)

	type failure struct {
		userID  string
		session Session
		err     error
	}
	var failures []failure

	for userID, session := range targets {
		if err := session.Send(event); err != nil {
			failures = append(failures, failure{userID: userID, session: session, err: err})
		}
	}

	// Teardown happens after the fan-out loop so one stale session never
	// delays or aborts delivery to its siblings.
	for _, f := range failures {
		observability.BroadcastFailures().Inc()
		d.logger.Warn().
			Err(f.err).
			Str("user_id", f.userID).
			Str("kind", event.Kind).
			Msg("delivery failed, dropping session")
		go d.Detach(ctx, f.userID, f.session)
	}
}

func (d *Dispatcher) resolve(scope Scope) map[string]Session {
	if scope.Global() {
		return d.registry.Snapshot()
	}

	members, err := d.directory.ChannelMembers(scope.ChannelID)
	if err != nil {
		d.logger.Warn().Err(err).Str("channel_id", scope.ChannelID).Msg("failed to resolve channel members")
		return nil
	}

	targets := make(map[string]Session, len(members))
	for _, userID := range members {
		if session, ok := d.registry.SessionFor(userID); ok {
			targets[userID] = session
		}
	}
	return targets
}

// ReplayLast sends the channel's cached most-recent message event to a single
// session, giving a fresh connection something to render before it fetches
// history.
func (d *Dispatcher) ReplayLast(ctx context.Context, channelID string, session Session) {
	if d.redis == nil || d.redisCache == "" {
		return
	}

	key := fmt.Sprintf("%s:%s", d.redisCache, channelID)
	raw, err := d.redis.Get(ctx, key).Result()
	if err != nil {
		return
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		d.logger.Warn().Err(err).Msg("failed to unmarshal cached event")
		return
	}
	if err := session.Send(event); err != nil {
		d.logger.Debug().Err(err).Str("channel_id", channelID).Msg("dropping cached event for slow session")
	}
}

func (d *Dispatcher) cacheLastEvent(ctx context.Context, event Event) {
	if d.redis == nil || d.redisCache == "" || event.Kind != EventNewMessage || event.ChannelID == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to marshal event for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", d.redisCache, event.ChannelID)
	if err := d.redis.Set(ctx, key, payload, lastEventTTL).Err(); err != nil {
		d.logger.Warn().Err(err).Msg("failed to cache event")
	}
}

func (d *Dispatcher) relay(ctx context.Context, event Event, scope Scope) error {
	if (d.redis == nil || d.redisRelay == "") && (d.natsConn == nil || d.natsSubject == "") {
		return nil
	}

	envelope := relayEnvelope{
		Source: d.nodeID,
		Event:  event,
		Scope:  scope.ChannelID,
		SentAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if d.redis != nil && d.redisRelay != "" {
		if err := d.redis.Publish(ctx, d.redisRelay, payload).Err(); err != nil {
			return err
		}
	}
	if d.natsConn != nil && d.natsSubject != "" {
		if err := d.natsConn.Publish(d.natsSubject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) consumeRedis(ctx context.Context) {
	pubsub := d.redis.Subscribe(ctx, d.redisRelay)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error().Err(err).Msg("event relay redis subscription closed")
			return
		}
		d.handleRemote(ctx, []byte(msg.Payload))
	}
}

func (d *Dispatcher) consumeNATS(ctx context.Context) {
	sub, err := d.natsConn.QueueSubscribe(d.natsSubject, "deeplink-events", func(msg *nats.Msg) {
		d.handleRemote(ctx, msg.Data)
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to drain nats event subscription")
		}
	}()
}

func (d *Dispatcher) handleRemote(ctx context.Context, data []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		d.logger.Warn().Err(err).Msg("invalid relayed event")
		return
	}
	if envelope.Source == d.nodeID {
		return
	}

	d.publishMu.Lock()
	d.deliver(ctx, envelope.Event, Scope{ChannelID: envelope.Scope})
	d.publishMu.Unlock()
}

// Package clipwatch implements the clip detection and reconciliation engine:
// a periodic task that polls every watched broadcaster for new clips, posts a
// notification on novelty, removes subscriptions whose destination became
// unreachable, and commits the reconciled collection back to the store as one
// atomic replacement per tick.
package clipwatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dinushay/ClipLink/store"
	"github.com/dinushay/ClipLink/telemetry"
	"github.com/dinushay/ClipLink/twitchapi"
)

// TwitchAPI is the narrow read surface the watcher needs from the Helix client.
type TwitchAPI interface {
	GetUser(ctx context.Context, identifier string) (*twitchapi.User, error)
	GetGameName(ctx context.Context, gameID string) (string, error)
	GetLatestClip(ctx context.Context, broadcasterID string) (*twitchapi.Clip, error)
}

// DeliveryResult is the outcome of a best-effort send. The watcher folds all
// outcomes to a no-op; they stay distinct for logging, metrics, and tests.
type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	Forbidden
	RecipientUnreachable
)

// ChannelPermissions holds the three capabilities the bot needs on a
// destination channel.
type ChannelPermissions struct {
	ViewChannel  bool
	SendMessages bool
	EmbedLinks   bool
}

// OK reports whether all required capabilities are present.
func (p ChannelPermissions) OK() bool {
	return p.ViewChannel && p.SendMessages && p.EmbedLinks
}

// Missing names the absent capabilities for use in removal notices.
func (p ChannelPermissions) Missing() []string {
	var out []string
	if !p.ViewChannel {
		out = append(out, "View Channel")
	}
	if !p.SendMessages {
		out = append(out, "Send Messages")
	}
	if !p.EmbedLinks {
		out = append(out, "Embed Links")
	}
	return out
}

// Messenger is the capability surface the watcher consumes from the Discord
// session. All sends are best-effort.
type Messenger interface {
	IsMemberOfGuild(guildID string) bool
	GuildName(guildID string) string
	// ChannelPermissions returns an error when the channel no longer exists.
	ChannelPermissions(channelID string) (ChannelPermissions, error)
	SendClipNotice(channelID string, msg *discordgo.MessageSend) DeliveryResult
	SendDirectMessage(userID, content string) DeliveryResult
}

// Watcher drives the reconcile loop. Construct with New, signal readiness via
// MarkReady once the Discord session is established, then Run.
type Watcher struct {
	store     *store.Store
	twitch    TwitchAPI
	messenger Messenger
	interval  time.Duration
	clock     clockwork.Clock

	readyOnce sync.Once
	ready     chan struct{}
	lastTick  atomic.Int64 // unix seconds of last completed tick
}

func New(st *store.Store, tw TwitchAPI, m Messenger, interval time.Duration, clock clockwork.Clock) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		store:     st,
		twitch:    tw,
		messenger: m,
		interval:  interval,
		clock:     clock,
		ready:     make(chan struct{}),
	}
}

// MarkReady opens the one-time readiness gate. Run does not schedule the
// first tick before this is called.
func (w *Watcher) MarkReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}

// Ready reports whether the readiness gate has opened.
func (w *Watcher) Ready() bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// LastTick returns the completion time of the most recent tick, or the zero
// time when no tick has run yet.
func (w *Watcher) LastTick() time.Time {
	if s := w.lastTick.Load(); s != 0 {
		return time.Unix(s, 0)
	}
	return time.Time{}
}

// Run blocks until ctx is cancelled. Ticks run sequentially in this single
// goroutine, so a tick can never overlap a previous one; a tick that outlasts
// the interval simply delays (skips) the missed firings.
func (w *Watcher) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-w.ready:
	}
	slog.Info("clip watcher started", slog.Duration("interval", w.interval))

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("clip watcher stopped")
			return
		case <-ticker.Chan():
			w.Tick(ctx)
		}
	}
}

// Tick runs one reconcile pass over the whole collection and commits the
// result. It is a no-op when the gate is closed or the collection is empty.
func (w *Watcher) Tick(ctx context.Context) {
	if !w.Ready() {
		return
	}
	subs := w.store.All()
	telemetry.SetWatched(len(subs))
	if len(subs) == 0 {
		return
	}

	tickCtx := telemetry.WithCorrelation(ctx, uuid.NewString())
	tickCtx, span := telemetry.StartSpan(tickCtx, "clipwatch", "reconcile_tick",
		attribute.Int("subscriptions", len(subs)))
	defer span.End()
	telemetry.IncTicks()

	kept := make([]store.Subscription, 0, len(subs))
	var removed []store.Subscription
	for i := range subs {
		if w.reconcile(tickCtx, &subs[i]) {
			kept = append(kept, subs[i])
		} else {
			removed = append(removed, subs[i])
		}
	}

	if err := w.store.Commit(kept, removed); err != nil {
		slog.Error("failed to commit reconciled subscriptions", slog.Any("err", err))
	}
	telemetry.SetWatched(w.store.Count())
	w.lastTick.Store(w.clock.Now().Unix())
}

// reconcile evaluates one subscription and reports whether it is kept in the
// next collection. The subscription is mutated in place when a novel clip
// advances last_clip_id.
func (w *Watcher) reconcile(ctx context.Context, sub *store.Subscription) bool {
	if !w.messenger.IsMemberOfGuild(sub.ServerID) {
		slog.Info("no longer member of guild, removing subscription",
			slog.String("guild", sub.ServerID), slog.String("streamer", sub.StreamerID))
		w.sendRemovalNotice(ctx, sub, w.guildGoneNotice(ctx, sub))
		telemetry.IncSubscriptionsCleaned(telemetry.CleanupGuildGone)
		return false
	}

	perms, err := w.messenger.ChannelPermissions(sub.ChannelID)
	if err != nil || !perms.OK() {
		slog.Info("destination channel unusable, removing subscription",
			slog.String("channel", sub.ChannelID), slog.String("streamer", sub.StreamerID),
			slog.Any("missing", perms.Missing()))
		w.sendRemovalNotice(ctx, sub, w.channelGoneNotice(ctx, sub, perms, err != nil))
		telemetry.IncSubscriptionsCleaned(telemetry.CleanupChannelGone)
		return false
	}

	clip, err := w.twitch.GetLatestClip(ctx, sub.StreamerID)
	if err != nil {
		// Transient upstream failure: try again next cycle.
		slog.Warn("clip poll failed", slog.String("streamer", sub.StreamerID), slog.Any("err", err))
		return true
	}
	if clip == nil || clip.ID == sub.LastClipID {
		return true
	}

	slog.Info("new clip detected",
		slog.String("streamer", clip.BroadcasterName),
		slog.String("clip", clip.ID))
	sub.LastClipID = clip.ID
	telemetry.IncClipsDetected()

	gameName, err := w.twitch.GetGameName(ctx, clip.GameID)
	if err != nil {
		gameName = twitchapi.GameNameUnknown
	}

	// Delivery is best-effort: a forbidden send is logged and not retried,
	// and last_clip_id stays advanced either way.
	switch w.messenger.SendClipNotice(sub.ChannelID, BuildNotification(clip, gameName)) {
	case Delivered:
		telemetry.IncNotificationsSent()
	case Forbidden:
		slog.Warn("no permission to send clip notification",
			slog.String("channel", sub.ChannelID), slog.String("clip", clip.ID))
		telemetry.IncNotificationsForbidden()
	case RecipientUnreachable:
		slog.Warn("clip notification channel unreachable at send time",
			slog.String("channel", sub.ChannelID), slog.String("clip", clip.ID))
	}
	return true
}

// streamerLabel resolves the streamer's display name for notices, falling
// back to the raw id when resolution fails.
func (w *Watcher) streamerLabel(ctx context.Context, streamerID string) string {
	if user, err := w.twitch.GetUser(ctx, streamerID); err == nil && user != nil {
		return user.DisplayName
	}
	return streamerID
}

func (w *Watcher) guildGoneNotice(ctx context.Context, sub *store.Subscription) string {
	name := w.streamerLabel(ctx, sub.StreamerID)
	return fmt.Sprintf("Hey! The bot was removed from the server where you added the streamer **%s** (`%s`). Your notification has therefore been deleted.", name, sub.StreamerID)
}

func (w *Watcher) channelGoneNotice(ctx context.Context, sub *store.Subscription, perms ChannelPermissions, channelGone bool) string {
	name := w.streamerLabel(ctx, sub.StreamerID)
	guild := w.messenger.GuildName(sub.ServerID)
	reason := "deleted"
	if !channelGone {
		reason = fmt.Sprintf("missing permissions [`%s`]", strings.Join(perms.Missing(), "`, `"))
	}
	return fmt.Sprintf("Hey! The channel for clip notifications from streamer **%s** (`%s`) on the server `%s` is no longer accessible (%s). The notification has been removed.", name, sub.StreamerID, guild, reason)
}

// sendRemovalNotice delivers a best-effort direct notice to whoever created
// the subscription. Every failure outcome is swallowed.
func (w *Watcher) sendRemovalNotice(ctx context.Context, sub *store.Subscription, content string) {
	switch w.messenger.SendDirectMessage(sub.AddedByUserID, content) {
	case Delivered:
	case Forbidden, RecipientUnreachable:
		slog.Debug("removal notice undeliverable",
			slog.String("user", sub.AddedByUserID), slog.String("streamer", sub.StreamerID))
	}
}

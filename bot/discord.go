// Package bot wires the Discord surface: session lifecycle, slash command
// registration and handling, and the messenger capability consumed by the
// clip watcher.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dinushay/ClipLink/store"
	"github.com/dinushay/ClipLink/twitchapi"
)

// TwitchResolver is the account lookup the command handlers need.
type TwitchResolver interface {
	GetUser(ctx context.Context, identifier string) (*twitchapi.User, error)
}

var (
	manageChannels  int64 = discordgo.PermissionManageChannels
	discordCommands       = []*discordgo.ApplicationCommand{
		{
			Name:                     "addstreamer",
			Description:              "Adds a Twitch streamer for clip notifications.",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "twitch_user",
					Description: "The name or ID of the Twitch streamer.",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "The Discord channel to send clips to (optional).",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:        "liststreamers",
			Description: "Lists all monitored streamers on this server.",
		},
		{
			Name:                     "removestreamer",
			Description:              "Removes a streamer from the monitoring list.",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "streamer",
					Description:  "The ID of the streamer to remove.",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
	}
)

type Bot struct {
	session     *discordgo.Session
	store       *store.Store
	twitch      TwitchResolver
	maxPerGuild int
	onReady     func()
}

func (b *Bot) Close() error {
	return b.session.Close()
}

// Messenger returns the capability adapter the clip watcher consumes.
func (b *Bot) Messenger() *Messenger {
	return &Messenger{session: b.session}
}

// New connects the Discord session, registers the slash commands, and invokes
// onReady once the gateway handshake completes.
func New(token string, st *store.Store, tw TwitchResolver, maxPerGuild int, onReady func()) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	b := &Bot{session: session, store: st, twitch: tw, maxPerGuild: maxPerGuild, onReady: onReady}
	session.AddHandler(b.handleReady)
	session.AddHandler(b.handleInteraction)
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	if err := session.Open(); err != nil {
		return nil, err
	}

	for _, cmd := range discordCommands {
		if _, err := session.ApplicationCommandCreate(session.State.User.ID, "", cmd); err != nil {
			if cerr := session.Close(); cerr != nil {
				slog.Warn("failed to close session", slog.Any("err", cerr))
			}
			return nil, fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
	}

	return b, nil
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("bot is logged in", slog.String("user", r.User.Username))
	if err := s.UpdateStreamingStatus(0, "🔗 dinushay.de", "https://www.twitch.tv/dinu_shay"); err != nil {
		slog.Warn("failed to set presence", slog.Any("err", err))
	}
	if b.onReady != nil {
		b.onReady()
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "addstreamer":
			b.handleAddStreamer(s, i)
		case "liststreamers":
			b.handleListStreamers(s, i)
		case "removestreamer":
			b.handleRemoveStreamer(s, i)
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		if i.ApplicationCommandData().Name == "removestreamer" {
			b.handleStreamerAutocomplete(s, i)
		}
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: content,
		},
	})
	if err != nil {
		slog.Warn("failed to respond to interaction", slog.Any("err", err))
	}
}

func (b *Bot) handleAddStreamer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	identifier := data.Options[0].StringValue()
	targetChannelID := i.ChannelID
	for _, opt := range data.Options {
		if opt.Name == "channel" {
			targetChannelID = opt.ChannelValue(nil).ID
		}
	}

	perms, err := (&Messenger{session: s}).ChannelPermissions(targetChannelID)
	if err != nil || !perms.OK() {
		respond(s, i, "❌ **Error:** I need the `View Channel`, `Send Messages`, and `Embed Links` permissions in the selected channel to function.")
		return
	}

	guildSubs := b.store.ListGuild(i.GuildID)
	if len(guildSubs) >= b.maxPerGuild {
		respond(s, i, fmt.Sprintf("❌ **Error:** The limit of **%d** streamers per server has been reached.", b.maxPerGuild))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user, err := b.twitch.GetUser(ctx, identifier)
	if err != nil || user == nil {
		respond(s, i, fmt.Sprintf("❌ **Error:** A Twitch channel with the name/ID `%s` could not be found.", identifier))
		return
	}

	for _, sub := range guildSubs {
		if sub.StreamerID == user.ID {
			respond(s, i, fmt.Sprintf("❌ **Error:** The streamer **%s** is already being monitored on this server.", user.DisplayName))
			return
		}
	}

	sub := store.Subscription{
		StreamerID:    user.ID,
		ServerID:      i.GuildID,
		ChannelID:     targetChannelID,
		AddedByUserID: interactionUserID(i),
	}
	if err := b.store.Add(sub); err != nil {
		slog.Error("failed to persist subscription", slog.Any("err", err))
		respond(s, i, "An unexpected error occurred. Please try again later.")
		return
	}

	respond(s, i, fmt.Sprintf("✅ **Success!** The streamer **%s** is now being monitored. New clips will be posted in <#%s>.", user.DisplayName, targetChannelID))
}

func (b *Bot) handleListStreamers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildSubs := b.store.ListGuild(i.GuildID)
	if len(guildSubs) == 0 {
		respond(s, i, "ℹ️ No streamers are currently being monitored on this server.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Monitored streamers on %s", (&Messenger{session: s}).GuildName(i.GuildID)),
		Color: 0x3498DB,
	}
	for _, sub := range guildSubs {
		name := "Unknown Streamer"
		if user, err := b.twitch.GetUser(ctx, sub.StreamerID); err == nil && user != nil {
			name = user.DisplayName
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%s)", name, sub.StreamerID),
			Value: fmt.Sprintf("Added by: <@%s>\nChannel: <#%s>", sub.AddedByUserID, sub.ChannelID),
		})
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		slog.Warn("failed to respond to interaction", slog.Any("err", err))
	}
}

func (b *Bot) handleRemoveStreamer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	streamerID := i.ApplicationCommandData().Options[0].StringValue()
	removed, err := b.store.Remove(i.GuildID, streamerID)
	if err != nil {
		slog.Error("failed to persist removal", slog.Any("err", err))
		respond(s, i, "An unexpected error occurred. Please try again later.")
		return
	}
	if !removed {
		respond(s, i, "❌ **Error:** A streamer with this ID is not being monitored on this server.")
		return
	}
	respond(s, i, fmt.Sprintf("✅ **Success!** The streamer with the ID `%s` is no longer being monitored.", streamerID))
}

func (b *Bot) handleStreamerAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	partial := strings.ToLower(i.ApplicationCommandData().Options[0].StringValue())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, sub := range b.store.ListGuild(i.GuildID) {
		name := "ID: " + sub.StreamerID
		if user, err := b.twitch.GetUser(ctx, sub.StreamerID); err == nil && user != nil {
			name = user.DisplayName
		}
		if !strings.Contains(strings.ToLower(name), partial) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s (%s)", name, sub.StreamerID),
			Value: sub.StreamerID,
		})
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("failed to respond to autocomplete", slog.Any("err", err))
	}
}

// interactionUserID returns the invoking user's id whether the command came
// from a guild (Member set) or a DM (User set).
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

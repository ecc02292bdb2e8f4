package bot

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/dinushay/ClipLink/clipwatch"
)

// Messenger adapts the discordgo session to the capability surface the clip
// watcher consumes. All lookups go through the session state cache populated
// by the guild intents.
type Messenger struct {
	session *discordgo.Session
}

func (m *Messenger) IsMemberOfGuild(guildID string) bool {
	g, err := m.session.State.Guild(guildID)
	return err == nil && g != nil
}

func (m *Messenger) GuildName(guildID string) string {
	if g, err := m.session.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return guildID
}

// ChannelPermissions reports the bot's own effective capabilities on the
// channel. The error return means the channel no longer exists.
func (m *Messenger) ChannelPermissions(channelID string) (clipwatch.ChannelPermissions, error) {
	if _, err := m.session.State.Channel(channelID); err != nil {
		return clipwatch.ChannelPermissions{}, err
	}
	perms, err := m.session.State.UserChannelPermissions(m.session.State.User.ID, channelID)
	if err != nil {
		return clipwatch.ChannelPermissions{}, err
	}
	return clipwatch.ChannelPermissions{
		ViewChannel:  perms&discordgo.PermissionViewChannel != 0,
		SendMessages: perms&discordgo.PermissionSendMessages != 0,
		EmbedLinks:   perms&discordgo.PermissionEmbedLinks != 0,
	}, nil
}

func (m *Messenger) SendClipNotice(channelID string, msg *discordgo.MessageSend) clipwatch.DeliveryResult {
	_, err := m.session.ChannelMessageSendComplex(channelID, msg)
	return deliveryResult(err)
}

func (m *Messenger) SendDirectMessage(userID, content string) clipwatch.DeliveryResult {
	dm, err := m.session.UserChannelCreate(userID)
	if err != nil {
		return deliveryResult(err)
	}
	_, err = m.session.ChannelMessageSend(dm.ID, content)
	return deliveryResult(err)
}

// deliveryResult folds a discordgo REST error into the watcher's outcome
// taxonomy: 403 means forbidden, anything else undeliverable.
func deliveryResult(err error) clipwatch.DeliveryResult {
	if err == nil {
		return clipwatch.Delivered
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusForbidden {
		return clipwatch.Forbidden
	}
	return clipwatch.RecipientUnreachable
}

package clipwatch

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/dinushay/ClipLink/twitchapi"
)

const embedColor = 0x9B59B6

// VODTimestamp renders a playback offset in seconds as the compact token
// Twitch accepts in the ?t= query parameter, e.g. 3661 -> "1h1m1s". All three
// components are always present, without zero padding.
func VODTimestamp(offset int) string {
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	seconds := offset % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

// VODLink builds the deep link into the source VOD at the clip's offset.
func VODLink(videoID string, offset int) string {
	return fmt.Sprintf("https://www.twitch.tv/videos/%s?t=%s", videoID, VODTimestamp(offset))
}

// BuildNotification turns a detected clip and its resolved category name into
// the destination-ready Discord message: one embed plus link buttons. The
// "Go to VOD" button is present only when the clip carries both a source
// video id and a playback offset.
func BuildNotification(clip *twitchapi.Clip, gameName string) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎬｜New Clip at %s", clip.BroadcasterName),
		Description: fmt.Sprintf("**[%s](%s)**", clip.Title, clip.URL),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Created by", Value: clip.CreatorName, Inline: true},
			{Name: "Category", Value: gameName, Inline: true},
			{Name: "Created", Value: fmt.Sprintf("<t:%d:R>", clip.CreatedAt.Unix()), Inline: true},
		},
		Image:  &discordgo.MessageEmbedImage{URL: clip.ThumbnailURL},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Duration: %d seconds", int(clip.Duration))},
	}

	buttons := []discordgo.MessageComponent{
		discordgo.Button{Label: "View Clip", Style: discordgo.LinkButton, URL: clip.URL},
	}
	if clip.VideoID != "" && clip.VODOffset != nil {
		buttons = append(buttons, discordgo.Button{
			Label: "Go to VOD",
			Style: discordgo.LinkButton,
			URL:   VODLink(clip.VideoID, *clip.VODOffset),
		})
	}

	return &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
	}
}

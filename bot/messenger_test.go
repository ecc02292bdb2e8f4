package bot

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/dinushay/ClipLink/clipwatch"
)

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestDeliveryResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want clipwatch.DeliveryResult
	}{
		{"nil error", nil, clipwatch.Delivered},
		{"forbidden", restError(http.StatusForbidden), clipwatch.Forbidden},
		{"not found", restError(http.StatusNotFound), clipwatch.RecipientUnreachable},
		{"server error", restError(http.StatusInternalServerError), clipwatch.RecipientUnreachable},
		{"plain error", errors.New("connection reset"), clipwatch.RecipientUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deliveryResult(tt.err); got != tt.want {
				t.Errorf("deliveryResult(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestInteractionUserID(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "u1"}},
	}}
	if got := interactionUserID(guild); got != "u1" {
		t.Errorf("guild interaction user = %q, want u1", got)
	}

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u2"},
	}}
	if got := interactionUserID(dm); got != "u2" {
		t.Errorf("dm interaction user = %q, want u2", got)
	}

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := interactionUserID(empty); got != "" {
		t.Errorf("empty interaction user = %q, want empty", got)
	}
}

package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/db"
)

// Discord handles Discord webhook notifications
type Discord struct {
	client *http.Client
}

// NewDiscord creates a new Discord webhook handler
func NewDiscord() *Discord {
	return &Discord{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// DiscordPayload represents the webhook payload
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// SendAlarm posts a fired alarm to Discord
func (d *Discord) SendAlarm(webhookURL string, p alarm.Payload, firedAt time.Time) error {
	kindText := "Routine task"
	if p.Kind == db.KindStandalone {
		kindText = "Standalone task"
	}

	embed := DiscordEmbed{
		Title: fmt.Sprintf("⏰ %s", p.Title),
		Color: 0x36A2EB,
		Fields: []EmbedField{
			{Name: "Kind", Value: kindText, Inline: true},
			{Name: "Task", Value: fmt.Sprintf("%s/%d", p.Kind, p.TaskID), Inline: true},
		},
		Timestamp: firedAt.Format(time.RFC3339),
		Footer:    &EmbedFooter{Text: "routined"},
	}

	payload := DiscordPayload{
		Embeds: []DiscordEmbed{embed},
	}

	return d.send(webhookURL, payload)
}

func (d *Discord) send(webhookURL string, payload DiscordPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

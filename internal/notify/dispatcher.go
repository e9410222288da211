// Package notify consumes fired alarms from the in-process engine and hands
// them to the presentation channels. Presentation itself (sound, UI) is the
// platform's job; here every fired alarm is logged and optionally forwarded
// to configured webhooks.
package notify

import (
	"log/slog"
	"sync"

	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/webhook"
)

// Dispatcher drains the engine's fired-alarm channel.
type Dispatcher struct {
	engine     *alarm.Engine
	slack      *webhook.Slack
	discord    *webhook.Discord
	slackURL   string
	discordURL string
	done       chan struct{}
	once       sync.Once
}

// New creates a dispatcher. Empty webhook URLs disable that channel.
func New(engine *alarm.Engine, slackURL, discordURL string) *Dispatcher {
	return &Dispatcher{
		engine:     engine,
		slack:      webhook.NewSlack(),
		discord:    webhook.NewDiscord(),
		slackURL:   slackURL,
		discordURL: discordURL,
		done:       make(chan struct{}),
	}
}

// Start launches the dispatch loop. The loop exits when the engine's channel
// closes on engine shutdown.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		go d.loop()
	})
}

// Wait blocks until the dispatch loop has drained and exited.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for fired := range d.engine.C() {
		d.dispatch(fired)
	}
}

func (d *Dispatcher) dispatch(fired alarm.Fired) {
	slog.Info("alarm fired",
		"task", fired.Payload.TaskID,
		"kind", fired.Payload.Kind,
		"title", fired.Payload.Title,
		"at", fired.At,
		"play_sound", fired.Payload.PlaySound,
	)

	// Webhook failures never propagate; the alarm already fired.
	if d.slackURL != "" {
		if err := d.slack.SendAlarm(d.slackURL, fired.Payload, fired.At); err != nil {
			slog.Warn("slack webhook failed", "error", err)
		}
	}
	if d.discordURL != "" {
		if err := d.discord.SendAlarm(d.discordURL, fired.Payload, fired.At); err != nil {
			slog.Warn("discord webhook failed", "error", err)
		}
	}
}

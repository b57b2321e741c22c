package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/agnosto/casewatch/config"
	"github.com/agnosto/casewatch/discord"
	"github.com/agnosto/casewatch/reddit"
	"github.com/agnosto/casewatch/store"
	"github.com/agnosto/casewatch/updater"
)

// Source feeds the reconciler with moderation-log removals newer than the
// given watermark, newest first.
type Source interface {
	FetchRemovals(ctx context.Context, since float64) ([]reddit.ModAction, error)
}

// Notifier mirrors repeat-offender alerts to the operator's side channels.
type Notifier interface {
	RepeatOffender(username string, count int)
}

// Persister owns the durable copy of the whole state unit.
type Persister interface {
	Save(s *store.Store) error
	UpdaterMarker() (*store.UpdaterMarker, error)
	SetUpdaterMarker(marker *store.UpdaterMarker) error
}

// Bot ties the case store to the moderation-log source and the Discord
// surface. One mutex serializes the poll cycle and every command, read-only
// ones included, so no caller ever observes a half-merged batch.
type Bot struct {
	mu        sync.Mutex
	store     *store.Store
	db        Persister
	source    Source
	messenger Messenger
	logger    *log.Logger

	prefix       string
	threshold    int
	pollInterval time.Duration
	dataDir      string
	ident        string
	version      string

	commands  map[string]*command
	authorize func(ctx context.Context, msg *discord.Message) bool
	notifier  Notifier
}

func New(cfg *config.Config, st *store.Store, db Persister, source Source, messenger Messenger, logger *log.Logger, version string) *Bot {
	if logger == nil {
		logger = log.New(os.Stdout, "bot: ", log.LstdFlags)
	}
	b := &Bot{
		store:        st,
		db:           db,
		source:       source,
		messenger:    messenger,
		logger:       logger,
		prefix:       cfg.Discord.CommandPrefix,
		threshold:    cfg.Options.RepeatOffenderThreshold,
		pollInterval: time.Duration(cfg.Options.PollInterval) * time.Second,
		dataDir:      cfg.Options.DataLocation,
		ident:        Ident(version),
		version:      version,
	}
	b.commands = buildCommands()
	return b
}

// Ident is the footer stamped on every embed the bot sends.
func Ident(version string) string {
	return fmt.Sprintf("Casewatch %s", version)
}

// SetAuthorizer installs the per-message authorization check. Unauthorized
// messages are ignored, not rejected.
func (b *Bot) SetAuthorizer(fn func(ctx context.Context, msg *discord.Message) bool) {
	b.authorize = fn
}

// SetNotifier installs the optional operator-side alert mirror.
func (b *Bot) SetNotifier(n Notifier) {
	b.notifier = n
}

// ResolveUpdaterMarker reports the outcome of a self-update that was in
// flight when the previous process exited. Called once on startup, before
// the poll loop begins.
func (b *Bot) ResolveUpdaterMarker(ctx context.Context) {
	marker, err := b.db.UpdaterMarker()
	if err != nil {
		b.logger.Printf("Error reading updater marker: %v", err)
		return
	}
	if marker == nil {
		return
	}

	embed := noticeEmbed("Updater", "Update failed.", colorRed, b.ident)
	if updater.SameVersion(marker.RemoteVersion, b.version) {
		embed = noticeEmbed("Updater", "Casewatch was updated successfully.", colorGreen, b.ident)
	}
	if err := b.messenger.Edit(ctx, marker.ChannelID, marker.MessageID, embed); err != nil {
		b.logger.Printf("Error reporting update outcome: %v", err)
	}
	if err := b.db.SetUpdaterMarker(nil); err != nil {
		b.logger.Printf("Error clearing updater marker: %v", err)
	}
}

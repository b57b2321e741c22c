package bot

import (
	"context"
	"fmt"

	"github.com/agnosto/casewatch/config"
	"github.com/agnosto/casewatch/discord"
	"github.com/agnosto/casewatch/logger"
	"github.com/agnosto/casewatch/notifications"
	"github.com/agnosto/casewatch/reddit"
	"github.com/agnosto/casewatch/store"
	"golang.org/x/sync/errgroup"
)

// Run wires the whole bot together and blocks until ctx is cancelled or a
// component fails unrecoverably. Both the foreground binary and the system
// service entry point call this.
func Run(ctx context.Context, cfg *config.Config, version string) error {
	db, err := store.Open(cfg.Options.DataLocation)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer db.Close()

	st, err := db.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	logger.Logger.Printf("Loaded %d case slot(s), checkpoint %.0f", st.Len(), st.Checkpoint())

	rest := discord.NewClient(cfg.Discord.Token)
	messenger := NewDiscordMessenger(rest, cfg.Discord.LogChannel, cfg.Discord.AlertChannel, cfg.Discord.AlertRole, version)
	source := reddit.NewClient(cfg.Reddit)

	b := New(cfg, st, db, source, messenger, logger.Logger, version)
	b.SetAuthorizer(NewGuildAuthorizer(rest, logger.Logger))
	if cfg.Notifications.Enabled {
		b.SetNotifier(notifications.NewService(cfg.Notifications, logger.Logger))
	}

	g, gctx := errgroup.WithContext(ctx)

	session := discord.NewSession(cfg.Discord.Token, func(msg *discord.Message) {
		go b.HandleMessage(gctx, msg)
	}, logger.Logger)

	g.Go(func() error {
		return session.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-session.Ready():
		}
		b.ResolveUpdaterMarker(gctx)
		return b.RunPoller(gctx)
	})

	return g.Wait()
}

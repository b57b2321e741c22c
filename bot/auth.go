package bot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/agnosto/casewatch/discord"
)

// guildAuthorizer answers "may this member run commands": yes for the
// guild owner and for anyone holding a role with ADMINISTRATOR. Guild
// metadata is fetched over REST and cached briefly so every message does
// not cost two API calls.
type guildAuthorizer struct {
	client *discord.Client
	logger *log.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]*guildPerms
}

type guildPerms struct {
	ownerID    string
	adminRoles map[string]bool
	fetchedAt  time.Time
}

func NewGuildAuthorizer(client *discord.Client, logger *log.Logger) func(ctx context.Context, msg *discord.Message) bool {
	a := &guildAuthorizer{
		client: client,
		logger: logger,
		ttl:    5 * time.Minute,
		cache:  make(map[string]*guildPerms),
	}
	return a.authorize
}

func (a *guildAuthorizer) authorize(ctx context.Context, msg *discord.Message) bool {
	if msg.GuildID == "" {
		return false
	}
	perms, err := a.perms(ctx, msg.GuildID)
	if err != nil {
		a.logger.Printf("Error resolving guild permissions: %v", err)
		return false
	}
	if msg.Author.ID == perms.ownerID {
		return true
	}
	if msg.Member == nil {
		return false
	}
	for _, role := range msg.Member.Roles {
		if perms.adminRoles[role] {
			return true
		}
	}
	return false
}

func (a *guildAuthorizer) perms(ctx context.Context, guildID string) (*guildPerms, error) {
	a.mu.Lock()
	cached, ok := a.cache[guildID]
	a.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < a.ttl {
		return cached, nil
	}

	guild, err := a.client.Guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roles, err := a.client.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}

	perms := &guildPerms{
		ownerID:    guild.OwnerID,
		adminRoles: make(map[string]bool),
		fetchedAt:  time.Now(),
	}
	for _, role := range roles {
		if role.HasPermission(discord.PermissionAdministrator) {
			perms.adminRoles[role.ID] = true
		}
	}

	a.mu.Lock()
	a.cache[guildID] = perms
	a.mu.Unlock()
	return perms, nil
}

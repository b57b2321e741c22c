package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/agnosto/casewatch/reddit"
	"github.com/agnosto/casewatch/store"
)

// RunPoller drives the reconciliation loop until ctx is cancelled. A failed
// cycle is logged and retried on the next tick; nothing short of
// cancellation stops the loop.
func (b *Bot) RunPoller(ctx context.Context) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		if err := b.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Printf("Poll cycle failed: %v. Continuing.", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one reconciliation cycle under the mutation lock.
func (b *Bot) Poll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pollLocked(ctx)
}

// pollLocked fetches removals past the checkpoint, merges them into the
// store oldest first, publishes a log message per case, alerts on authors
// that just reached the repeat-offender threshold and advances the
// checkpoint. Any error abandons the cycle with the checkpoint untouched;
// cases already merged stay in memory and are persisted by a later
// successful cycle or mutation.
func (b *Bot) pollLocked(ctx context.Context) error {
	cutoff := b.store.Checkpoint()
	actions, err := b.source.FetchRemovals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("fetching moderation log: %w", err)
	}

	// The source scans newest first; merge in chronological order so case
	// numbers follow removal order.
	var (
		newCases []int
		flagged  []string
		maxTS    = cutoff
	)
	for i := len(actions) - 1; i >= 0; i-- {
		entry := actions[i]
		if entry.Moderator == reddit.AutoModerator {
			continue
		}
		n := b.store.Append(store.Case{
			Title:     entry.TargetTitle,
			Author:    entry.TargetAuthor,
			Permalink: entry.TargetPermalink,
			Moderator: entry.Moderator,
			RemovedAt: entry.CreatedUTC,
		})
		newCases = append(newCases, n)
		if entry.CreatedUTC > maxTS {
			maxTS = entry.CreatedUTC
		}
		// Alert once, the moment an author reaches the threshold. Authors
		// already past it before this batch stay quiet.
		if b.store.UserCount(entry.TargetAuthor) == b.threshold {
			flagged = append(flagged, entry.TargetAuthor)
		}
	}

	if len(newCases) == 0 {
		return nil
	}
	b.logger.Printf("Merged %d new case(s) from the moderation log", len(newCases))

	for _, n := range newCases {
		c := b.store.Get(n)
		id, err := b.messenger.PublishCase(ctx, c)
		if err != nil {
			return fmt.Errorf("publishing case #%d: %w", n, err)
		}
		b.store.SetMessageID(n, id)
	}

	for _, user := range flagged {
		count := b.store.UserCount(user)
		text := fmt.Sprintf("/u/%s has made %d removed posts.", user, count)
		if err := b.messenger.Alert(ctx, text); err != nil {
			return fmt.Errorf("alerting on /u/%s: %w", user, err)
		}
		if b.notifier != nil {
			b.notifier.RepeatOffender(user, count)
		}
	}

	if b.store.AdvanceCheckpoint(maxTS) {
		if err := b.db.Save(b.store); err != nil {
			return fmt.Errorf("persisting state: %w", err)
		}
	}
	return nil
}

package bot

import (
	"context"
	"fmt"
	"testing"

	"github.com/agnosto/casewatch/reddit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func removal(mod, author string, ts float64) reddit.ModAction {
	return reddit.ModAction{
		Moderator:       mod,
		Action:          "removelink",
		TargetTitle:     "a removed post",
		TargetAuthor:    author,
		TargetPermalink: "/r/testing/comments/abc/a_removed_post/",
		CreatedUTC:      ts,
	}
}

func TestPollMergesChronologically(t *testing.T) {
	rig := newTestRig(t)
	// The source hands back entries newest first.
	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "carol", 300),
		removal("modB", "bob", 200),
		removal("modA", "alice", 100),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	// Case numbers follow removal order, oldest gets the lowest.
	require.Equal(t, 3, rig.store.Len())
	assert.Equal(t, "alice", rig.store.Get(0).Author)
	assert.Equal(t, "bob", rig.store.Get(1).Author)
	assert.Equal(t, "carol", rig.store.Get(2).Author)

	// Published oldest to newest, handles recorded.
	assert.Equal(t, []int{0, 1, 2}, rig.messenger.published)
	assert.Equal(t, "msg-1", rig.store.Get(1).MessageID)

	assert.Equal(t, float64(300), rig.store.Checkpoint())
	assert.Equal(t, 1, rig.db.saves)
}

func TestPollNoNewEntries(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.bot.Poll(context.Background()))

	assert.Equal(t, 0, rig.store.Len())
	assert.Empty(t, rig.messenger.published)
	assert.Equal(t, 0, rig.db.saves, "nothing new means nothing persisted")
}

func TestPollSkipsAutoModerator(t *testing.T) {
	rig := newTestRig(t)
	rig.source.batches = [][]reddit.ModAction{{
		removal(reddit.AutoModerator, "spam-author", 500),
		removal("modA", "alice", 100),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	require.Equal(t, 1, rig.store.Len())
	assert.Equal(t, "alice", rig.store.Get(0).Author)
	// The discarded entry contributes nothing, its timestamp included.
	assert.Equal(t, float64(100), rig.store.Checkpoint())
}

func TestPollOnlyAutoModerator(t *testing.T) {
	rig := newTestRig(t)
	rig.source.batches = [][]reddit.ModAction{{
		removal(reddit.AutoModerator, "spam-author", 500),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	assert.Equal(t, 0, rig.store.Len())
	assert.Equal(t, float64(0), rig.store.Checkpoint())
	assert.Equal(t, 0, rig.db.saves)
}

func TestPollAlertsOnThreshold(t *testing.T) {
	rig := newTestRig(t)
	rig.seedCase("alice", "modA", 50)
	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "alice", 300),
		removal("modA", "alice", 200),
		removal("modB", "bob", 100),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	// alice went 1 -> 3 inside the cycle: exactly one alert, bob stays
	// quiet at 1.
	require.Len(t, rig.messenger.alerts, 1)
	assert.Equal(t, "/u/alice has made 3 removed posts.", rig.messenger.alerts[0])
}

func TestPollNoRepeatAlertPastThreshold(t *testing.T) {
	rig := newTestRig(t)
	rig.seedCase("alice", "modA", 10)
	rig.seedCase("alice", "modA", 20)
	rig.seedCase("alice", "modA", 30)
	rig.store.AdvanceCheckpoint(30)

	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "alice", 100),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	assert.Empty(t, rig.messenger.alerts, "already past the threshold before the batch")
	assert.Equal(t, 4, rig.store.UserCount("alice"))
}

func TestPollAlertCitesPostBatchCount(t *testing.T) {
	rig := newTestRig(t)
	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "alice", 500),
		removal("modA", "alice", 400),
		removal("modA", "alice", 300),
		removal("modA", "alice", 200),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))

	require.Len(t, rig.messenger.alerts, 1)
	assert.Equal(t, "/u/alice has made 4 removed posts.", rig.messenger.alerts[0])
}

func TestPollFetchErrorAbandonsCycle(t *testing.T) {
	rig := newTestRig(t)
	rig.store.AdvanceCheckpoint(42)
	rig.source.err = fmt.Errorf("reddit is down")

	err := rig.bot.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, float64(42), rig.store.Checkpoint())
	assert.Equal(t, 0, rig.db.saves)
}

func TestPollPublishFailureKeepsCheckpoint(t *testing.T) {
	rig := newTestRig(t)
	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "alice", 100),
	}}
	rig.messenger.publishErr = fmt.Errorf("discord is down")

	err := rig.bot.Poll(context.Background())
	require.Error(t, err)

	// The checkpoint and the durable copy are untouched; the merged case
	// stays in memory until a later cycle persists it.
	assert.Equal(t, float64(0), rig.store.Checkpoint())
	assert.Equal(t, 0, rig.db.saves)
	assert.Equal(t, 1, rig.store.Len())
}

func TestPollDoesNotReingest(t *testing.T) {
	rig := newTestRig(t)
	rig.source.batches = [][]reddit.ModAction{
		{removal("modA", "alice", 100)},
		{},
	}

	require.NoError(t, rig.bot.Poll(context.Background()))
	require.NoError(t, rig.bot.Poll(context.Background()))

	// The second fetch starts from the advanced watermark.
	require.Len(t, rig.source.since, 2)
	assert.Equal(t, float64(0), rig.source.since[0])
	assert.Equal(t, float64(100), rig.source.since[1])
	assert.Equal(t, 1, rig.store.Len())
}

func TestPollNotifiesOperator(t *testing.T) {
	rig := newTestRig(t)

	var notified []string
	rig.bot.SetNotifier(notifierFunc(func(username string, count int) {
		notified = append(notified, fmt.Sprintf("%s:%d", username, count))
	}))

	rig.source.batches = [][]reddit.ModAction{{
		removal("modA", "alice", 300),
		removal("modA", "alice", 200),
		removal("modA", "alice", 100),
	}}

	require.NoError(t, rig.bot.Poll(context.Background()))
	assert.Equal(t, []string{"alice:3"}, notified)
}

type notifierFunc func(username string, count int)

func (f notifierFunc) RepeatOffender(username string, count int) { f(username, count) }

package bot

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnosto/casewatch/discord"
	"github.com/agnosto/casewatch/errors"
	"github.com/agnosto/casewatch/store"
	"github.com/agnosto/casewatch/updater"
	"github.com/agnosto/casewatch/utils"
)

const sourceURL = "https://github.com/agnosto/casewatch"

const aboutText = `Casewatch - a Discord bot for transparency in subreddit moderation.

It mirrors every removed post from the moderation log into this server as
a numbered case, tracks removal counts per user and lets administrators
strike, annotate and query cases.`

// invocation carries one authorized command message through its handler.
type invocation struct {
	msg  *discord.Message
	args []string // whitespace-split tokens after the command name
	rest string   // everything after the command name, unsplit
}

type command struct {
	name    string
	usage   string
	desc    string // empty keeps the command off the help screen
	handler func(b *Bot, ctx context.Context, inv *invocation) error
}

func buildCommands() map[string]*command {
	table := []*command{
		{"help", "", "Shows this list of commands.", (*Bot).cmdHelp},
		{"about", "", "Shows copyright information.", (*Bot).cmdAbout},
		{"show", "#", "Sends an untracked copy of a case's info.", (*Bot).cmdShow},
		{"info", "USER", "Shows all of a user's cases.", (*Bot).cmdInfo},
		{"strike", "#", "Strikes the given case.  A stricken case will have its log removed, and will not count against the OP.", (*Bot).cmdStrike},
		{"clear", "USER", "Strikes every case associated with the given user.  See strike.", (*Bot).cmdClear},
		{"justify", "# REASON...", "Sets the reason field of a case.", (*Bot).cmdJustify},
		{"users", "", "Lists all tracked users and their removal counts.", (*Bot).cmdUsers},
		{"scores", "", "Lists all moderators and how many posts they have removed.", (*Bot).cmdScores},
		{"pose", "", "People posing perpendicularly.", (*Bot).cmdPose},
		{"update", "", "Updates Casewatch to the latest version.", (*Bot).cmdUpdate},
	}
	m := make(map[string]*command, len(table))
	for _, c := range table {
		m[c.name] = c
	}
	return m
}

// HandleMessage is the gateway's MESSAGE_CREATE callback. Messages from
// bots, without the command prefix or from unauthorized senders are
// ignored without a reply.
func (b *Bot) HandleMessage(ctx context.Context, msg *discord.Message) {
	if msg.Author.Bot || !strings.HasPrefix(msg.Content, b.prefix) {
		return
	}
	if b.authorize != nil && !b.authorize(ctx, msg) {
		return
	}
	b.logger.Printf("%s: %s", msg.Author.Username, msg.Content)
	b.Dispatch(ctx, msg)
}

// Dispatch parses the prefixed command and runs its handler under the
// mutation lock. Handler errors with a user-facing code render verbatim;
// anything else is logged and reported as an internal error.
func (b *Bot) Dispatch(ctx context.Context, msg *discord.Message) {
	body := strings.TrimPrefix(msg.Content, b.prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		b.reply(ctx, msg, errors.NewMissingArgument("Please specify a command."))
		return
	}

	cmd, ok := b.commands[fields[0]]
	if !ok {
		b.reply(ctx, msg, errors.NewNotFound(fmt.Sprintf("Unknown command %s.", fields[0])))
		return
	}

	inv := &invocation{
		msg:  msg,
		args: fields[1:],
		rest: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0])),
	}

	b.mu.Lock()
	err := cmd.handler(b, ctx, inv)
	b.mu.Unlock()
	if err != nil {
		b.reply(ctx, msg, err)
	}
}

func (b *Bot) reply(ctx context.Context, msg *discord.Message, err error) {
	if !errors.IsUserFacing(err) {
		b.logger.Printf("Command error: %v", err)
	}
	if sendErr := b.messenger.Failure(ctx, msg.ChannelID, errors.UserMessage(err)); sendErr != nil {
		b.logger.Printf("Error sending failure reply: %v", sendErr)
	}
}

// parseNum resolves the single case-number argument shared by show and
// strike.
func (b *Bot) parseNum(inv *invocation) (int, error) {
	if len(inv.args) == 0 {
		return 0, errors.NewMissingArgument("Please specify a case number.")
	}
	return b.store.Validate(inv.args[0])
}

// parseUser resolves the single username argument shared by info and
// clear.
func (b *Bot) parseUser(inv *invocation) (string, error) {
	if len(inv.args) == 0 {
		return "", errors.NewMissingArgument("Please specify a username.")
	}
	return b.store.LookupUser(inv.args[0])
}

func (b *Bot) cmdHelp(ctx context.Context, inv *invocation) error {
	names := make([]string, 0, len(b.commands))
	for name, c := range b.commands {
		if c.desc != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	embed := discord.Embed{
		Title:  "Help",
		Color:  colorDarkGold,
		Footer: &discord.EmbedFooter{Text: b.ident},
	}
	for _, name := range names {
		c := b.commands[name]
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  strings.TrimSpace(b.prefix + c.name + " " + c.usage),
			Value: c.desc,
		})
	}
	_, err := b.messenger.Send(ctx, inv.msg.ChannelID, embed)
	return err
}

func (b *Bot) cmdAbout(ctx context.Context, inv *invocation) error {
	embed := discord.Embed{
		Color: colorOrange,
		Fields: []discord.EmbedField{
			{Name: b.ident, Value: aboutText},
			{Name: "Source code", Value: sourceURL},
		},
		Footer: &discord.EmbedFooter{Text: b.ident},
	}
	_, err := b.messenger.Send(ctx, inv.msg.ChannelID, embed)
	return err
}

func (b *Bot) cmdShow(ctx context.Context, inv *invocation) error {
	n, err := b.parseNum(inv)
	if err != nil {
		return err
	}
	return b.messenger.ShowCase(ctx, inv.msg.ChannelID, b.store.Get(n))
}

func (b *Bot) cmdInfo(ctx context.Context, inv *invocation) error {
	user, err := b.parseUser(inv)
	if err != nil {
		return err
	}
	for _, n := range b.store.UserCases(user) {
		c := b.store.Get(n)
		if c == nil {
			// The index only holds live cases, but stale external state
			// could still hand us a tombstoned number.
			if err := b.messenger.Success(ctx, inv.msg.ChannelID, fmt.Sprintf("Case #%d was stricken.", n)); err != nil {
				return err
			}
			continue
		}
		if err := b.messenger.ShowCase(ctx, inv.msg.ChannelID, c); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cmdStrike(ctx context.Context, inv *invocation) error {
	n, err := b.parseNum(inv)
	if err != nil {
		return err
	}
	if err := b.strikeOne(ctx, n); err != nil {
		return err
	}
	if err := b.db.Save(b.store); err != nil {
		return errors.NewInternal(err)
	}
	return b.messenger.Success(ctx, inv.msg.ChannelID, fmt.Sprintf("Case #%d was stricken.", n))
}

// strikeOne retracts the case's log message, then tombstones it. The
// retraction tolerates the message already being gone.
func (b *Bot) strikeOne(ctx context.Context, n int) error {
	c := b.store.Get(n)
	if err := b.messenger.RetractCase(ctx, c); err != nil {
		return errors.NewInternal(err)
	}
	b.store.Strike(n)
	return nil
}

func (b *Bot) cmdClear(ctx context.Context, inv *invocation) error {
	user, err := b.parseUser(inv)
	if err != nil {
		return err
	}
	for {
		cases := b.store.UserCases(user)
		if len(cases) == 0 {
			break
		}
		if err := b.strikeOne(ctx, cases[0]); err != nil {
			return err
		}
	}
	if err := b.db.Save(b.store); err != nil {
		return errors.NewInternal(err)
	}
	return b.messenger.Success(ctx, inv.msg.ChannelID, fmt.Sprintf("All cases associated with /u/%s were stricken.", user))
}

func (b *Bot) cmdJustify(ctx context.Context, inv *invocation) error {
	parts := strings.SplitN(inv.rest, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return errors.NewMissingArgument("Please specify a case number and a reason.")
	}
	n, err := b.store.Validate(parts[0])
	if err != nil {
		return err
	}
	reason := strings.TrimSpace(parts[1])

	b.store.Justify(n, reason)
	if err := b.messenger.UpdateCase(ctx, b.store.Get(n)); err != nil {
		return errors.NewInternal(err)
	}
	if err := b.db.Save(b.store); err != nil {
		return errors.NewInternal(err)
	}
	return b.messenger.Success(ctx, inv.msg.ChannelID, fmt.Sprintf("The reason for case #%d has been set to: %s", n, reason))
}

func (b *Bot) cmdUsers(ctx context.Context, inv *invocation) error {
	var lines []string
	for _, u := range b.store.Users() {
		lines = append(lines, fmt.Sprintf("/u/%s - %d", u.Username, u.Count))
	}
	return b.messenger.List(ctx, inv.msg.ChannelID, "Removals", lines)
}

func (b *Bot) cmdScores(ctx context.Context, inv *invocation) error {
	var lines []string
	for _, s := range b.store.ModeratorScores() {
		lines = append(lines, fmt.Sprintf("/u/%s - %d", s.Moderator, s.Count))
	}
	return b.messenger.List(ctx, inv.msg.ChannelID, "Leaderboard", lines)
}

// poseEpoch anchors the daily pose rotation.
var poseEpoch = time.Date(2018, 4, 20, 0, 0, 0, 0, time.UTC)

func (b *Bot) cmdPose(ctx context.Context, inv *invocation) error {
	data, err := os.ReadFile(filepath.Join(b.dataDir, "poses.txt"))
	if err != nil {
		return errors.NewInternal(err)
	}
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	if len(urls) == 0 {
		return errors.NewNotFound("There are no poses today.")
	}

	// Same pose all day, a new one tomorrow.
	day := int64(time.Since(poseEpoch).Hours() / 24)
	poseURL := urls[rand.New(rand.NewSource(day)).Intn(len(urls))]

	img, err := fetchPose(ctx, poseURL)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := b.messenger.SendFile(ctx, inv.msg.ChannelID, utils.GetFileNameFromURL(poseURL), img); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func fetchPose(ctx context.Context, poseURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", poseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1; SV1)")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pose fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (b *Bot) cmdUpdate(ctx context.Context, inv *invocation) error {
	msgID, err := b.messenger.Send(ctx, inv.msg.ChannelID, noticeEmbed("Updater", "Checking for updates...", colorBlue, b.ident))
	if err != nil {
		return errors.NewInternal(err)
	}

	release, err := updater.LatestRelease()
	if err != nil {
		return errors.NewInternal(err)
	}

	if updater.SameVersion(release.TagName, b.version) {
		if err := b.messenger.Edit(ctx, inv.msg.ChannelID, msgID, noticeEmbed("Updater", "Casewatch is already up-to-date.", colorGreen, b.ident)); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	}

	// The marker survives the restart; the next startup edits this message
	// with the outcome.
	marker := &store.UpdaterMarker{
		ChannelID:     inv.msg.ChannelID,
		MessageID:     msgID,
		RemoteVersion: strings.TrimPrefix(release.TagName, "v"),
	}
	if err := b.db.SetUpdaterMarker(marker); err != nil {
		return errors.NewInternal(err)
	}

	if err := b.messenger.Edit(ctx, inv.msg.ChannelID, msgID, noticeEmbed("Updater", fmt.Sprintf("Downloading version %s...", release.TagName), colorGold, b.ident)); err != nil {
		return errors.NewInternal(err)
	}

	if err := updater.Apply(release); err != nil {
		return errors.NewInternal(err)
	}

	b.logger.Printf("Update to %s applied, restarting", release.TagName)
	if err := updater.Restart(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/agnosto/casewatch/config"
	"github.com/agnosto/casewatch/discord"
	"github.com/agnosto/casewatch/reddit"
	"github.com/agnosto/casewatch/store"
)

// DiagnosisSuite runs connectivity self-tests against everything the bot
// depends on and writes a shareable report.
type DiagnosisSuite struct {
	flags  DiagnosisFlags
	cfg    *config.Config
	report *strings.Builder
}

func NewDiagnosisSuite(flags DiagnosisFlags, cfg *config.Config) *DiagnosisSuite {
	return &DiagnosisSuite{
		flags:  flags,
		cfg:    cfg,
		report: &strings.Builder{},
	}
}

func (ds *DiagnosisSuite) Run() {
	ds.log("Starting diagnosis suite...")
	ds.log(fmt.Sprintf("Verbosity Level: %d", ds.flags.Level))
	ds.log("----------------------------------")

	ctx := context.Background()

	ds.testConfig()
	if ds.cfg != nil {
		ds.testReddit(ctx)
		ds.testDiscord(ctx)
		ds.testStateDatabase()
	}

	ds.log("----------------------------------")
	ds.log("Diagnosis suite finished.")

	ds.saveReport()
}

func (ds *DiagnosisSuite) log(message string) {
	fmt.Println(message)
	ds.report.WriteString(message + "\n")
}

func (ds *DiagnosisSuite) sanitizePath(path string) string {
	re := regexp.MustCompile(`(?i)(C:\\Users\\[^\\]+|/home/[^/]+|/Users/[^/]+)`)
	return re.ReplaceAllString(path, "[REDACTED_USER_PATH]")
}

func (ds *DiagnosisSuite) testConfig() {
	ds.log("\n[1] Testing Configuration")
	if ds.cfg == nil {
		ds.log(" - FAIL: Configuration file could not be loaded. Please run the app once without flags to generate one.")
		return
	}

	configPath := config.GetConfigPath()
	ds.log(fmt.Sprintf(" - Config path: %s", ds.sanitizePath(configPath)))
	ds.log(" - PASS: Config loaded successfully.")

	if ds.flags.Level > 1 {
		redactedCfg := *ds.cfg
		redactedCfg.Reddit.ClientSecret = "[REDACTED]"
		redactedCfg.Reddit.Password = "[REDACTED]"
		redactedCfg.Discord.Token = "[REDACTED]"
		redactedCfg.Notifications.TelegramBotToken = "[REDACTED]"
		redactedCfg.Notifications.TelegramChatID = "[REDACTED]"
		redactedCfg.Options.DataLocation = ds.sanitizePath(redactedCfg.Options.DataLocation)
		ds.log(fmt.Sprintf(" - Loaded config (redacted): %+v", redactedCfg))
	}
}

func (ds *DiagnosisSuite) testReddit(ctx context.Context) {
	ds.log("\n[2] Testing Reddit")

	client := reddit.NewClient(ds.cfg.Reddit)
	if err := client.Authenticate(ctx); err != nil {
		ds.log(fmt.Sprintf(" - FAIL: Reddit authentication failed. Check client_id, client_secret, username and password. Error: %v", err))
		return
	}
	ds.log(" - PASS: Reddit authentication succeeded.")

	// A probe against "now" returns instantly without paging history.
	actions, err := client.FetchRemovals(ctx, float64(time.Now().Unix()))
	if err != nil {
		ds.log(fmt.Sprintf(" - FAIL: Could not read the moderation log of r/%s. Is the bot account a moderator there? Error: %v", ds.cfg.Reddit.Subreddit, err))
		return
	}
	ds.log(fmt.Sprintf(" - PASS: Moderation log of r/%s is readable (%d entries past the probe watermark).", ds.cfg.Reddit.Subreddit, len(actions)))
}

func (ds *DiagnosisSuite) testDiscord(ctx context.Context) {
	ds.log("\n[3] Testing Discord")

	client := discord.NewClient(ds.cfg.Discord.Token)
	me, err := client.Me(ctx)
	if err != nil {
		ds.log(fmt.Sprintf(" - FAIL: Discord token rejected: %v", err))
		return
	}
	ds.log(fmt.Sprintf(" - PASS: Authenticated as bot user %s.", me.Username))

	for _, probe := range []struct {
		label string
		id    string
	}{
		{"log_channel", ds.cfg.Discord.LogChannel},
		{"alert_channel", ds.cfg.Discord.AlertChannel},
	} {
		if probe.id == "" {
			ds.log(fmt.Sprintf(" - SKIP: %s is not configured.", probe.label))
			continue
		}
		ch, err := client.Channel(ctx, probe.id)
		if err != nil {
			ds.log(fmt.Sprintf(" - FAIL: Could not access %s %s: %v", probe.label, probe.id, err))
			continue
		}
		ds.log(fmt.Sprintf(" - PASS: %s resolves to #%s.", probe.label, ch.Name))
	}
}

func (ds *DiagnosisSuite) testStateDatabase() {
	ds.log("\n[4] Testing State Database")

	db, err := store.Open(ds.cfg.Options.DataLocation)
	if err != nil {
		ds.log(fmt.Sprintf(" - FAIL: Could not open the state database: %v", err))
		return
	}
	defer db.Close()

	s, err := db.Load()
	if err != nil {
		ds.log(fmt.Sprintf(" - FAIL: Could not load state: %v", err))
		return
	}
	ds.log(fmt.Sprintf(" - PASS: State loaded: %d case slot(s), %d tracked user(s), checkpoint %.0f.", s.Len(), len(s.Users()), s.Checkpoint()))
}

func (ds *DiagnosisSuite) saveReport() {
	outputFile := ds.flags.OutputFile
	if outputFile == "" {
		outputFile = fmt.Sprintf("diagnosis-report-%s.txt", time.Now().Format("2006-01-02_15-04-05"))
	}

	err := os.WriteFile(outputFile, []byte(ds.report.String()), 0644)
	if err != nil {
		fmt.Printf("\nCould not save report to %s: %v\n", outputFile, err)
	} else {
		fmt.Printf("\nDiagnosis report saved to %s\n", outputFile)
	}
}

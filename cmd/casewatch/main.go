package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agnosto/casewatch/bot"
	"github.com/agnosto/casewatch/cmd"
	"github.com/agnosto/casewatch/config"
	"github.com/agnosto/casewatch/logger"
	"github.com/agnosto/casewatch/ui"
	"github.com/agnosto/casewatch/updater"
	"github.com/fatih/color"

	tea "github.com/charmbracelet/bubbletea"
)

const version = "v1.0.0"

func main() {
	flags, subcommand := cmd.ParseFlags()

	if flags.Version {
		fmt.Printf("casewatch %s\n", version)
		return
	}

	if subcommand == "update" {
		if err := updater.CheckForUpdate(version); err != nil {
			fmt.Printf("Error updating: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flags.Service != "" {
		if err := cmd.ControlService(flags.Service, version); err != nil {
			fmt.Printf("Error controlling service: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if subcommand == "service" {
		cmd.RunService(version)
		return
	}

	config.VerifyConfigOnStartup()
	cfg, err := config.LoadConfig(config.GetConfigPath())
	if err != nil {
		color.Yellow("Config is missing or incomplete: %v", err)
		cfg = runConfigWizard()
	}

	if subcommand == "diagnose" {
		diagFlags := cmd.ParseDiagnosisFlags()
		cmd.NewDiagnosisSuite(diagFlags, cfg).Run()
		return
	}

	if err := logger.InitLogger(cfg); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger.Logger.Printf("Starting Casewatch version %s", version)

	if cfg.Options.CheckUpdates {
		if tag, ok := updater.UpdateAvailable(version); ok {
			color.Cyan("A new version of casewatch is available: %s (run 'casewatch update')", tag)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	color.Green("Casewatch %s is running. Press Ctrl+C to stop.", version)
	if err := bot.Run(ctx, cfg, version); err != nil && ctx.Err() == nil {
		logger.Logger.Printf("Bot exited with error: %v", err)
		color.Red("Casewatch stopped: %v", err)
		os.Exit(1)
	}
	color.Yellow("Casewatch stopped.")
}

// runConfigWizard walks the operator through a first-time setup and exits
// if no usable config comes out of it.
func runConfigWizard() *config.Config {
	p := tea.NewProgram(ui.NewConfigWizardModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running setup: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(config.GetConfigPath())
	if err != nil {
		color.Red("Config is still invalid: %v", err)
		os.Exit(1)
	}
	return cfg
}

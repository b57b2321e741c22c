package cmd

import (
	"context"
	"fmt"

	"github.com/agnosto/casewatch/bot"
	"github.com/agnosto/casewatch/config"
	"github.com/agnosto/casewatch/logger"
	ksvc "github.com/kardianos/service"
)

type Program struct {
	cfg     *config.Config
	version string
	cancel  context.CancelFunc
}

func (p *Program) Start(s ksvc.Service) error {
	go p.run()
	return nil
}

func (p *Program) run() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	if err := bot.Run(ctx, p.cfg, p.version); err != nil && ctx.Err() == nil {
		logger.Logger.Printf("Bot exited with error: %v", err)
	}
}

func (p *Program) Stop(s ksvc.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// RunService starts the bot under the platform's service manager.
func RunService(version string) {
	cfg, err := config.LoadConfig(config.GetConfigPath())
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	if err := logger.InitLogger(cfg); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		return
	}

	prg := &Program{
		cfg:     cfg,
		version: version,
	}

	svcConfig := &ksvc.Config{
		Name:        "Casewatch",
		DisplayName: "Casewatch Service",
		Description: "This service mirrors subreddit moderation removals into Discord.",
	}

	s, err := ksvc.New(prg, svcConfig)
	if err != nil {
		logger.Logger.Printf("Error creating service: %v", err)
		return
	}

	err = s.Run()
	if err != nil {
		logger.Logger.Printf("Error running service: %v", err)
	}
}

// ControlService handles install/uninstall/start/stop/restart.
func ControlService(action, version string) error {
	prg := &Program{version: version}
	svcConfig := &ksvc.Config{
		Name:        "Casewatch",
		DisplayName: "Casewatch Service",
		Description: "This service mirrors subreddit moderation removals into Discord.",
		Arguments:   []string{"service", "run"},
	}
	s, err := ksvc.New(prg, svcConfig)
	if err != nil {
		return err
	}
	if action == "restart" {
		if err := ksvc.Control(s, "stop"); err != nil {
			fmt.Printf("Warning stopping service: %v\n", err)
		}
		return ksvc.Control(s, "start")
	}
	return ksvc.Control(s, action)
}

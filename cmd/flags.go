package cmd

import (
	"flag"
)

type Flags struct {
	Version bool
	Service string
}

type DiagnosisFlags struct {
	Level      int
	OutputFile string
}

// ParseFlags reads the global flags and returns them with the first
// positional subcommand ("update", "diagnose" or "service").
func ParseFlags() (Flags, string) {
	flags := Flags{}

	flag.BoolVar(&flags.Version, "v", false, "Display version information")
	flag.BoolVar(&flags.Version, "version", false, "Display version information")
	flag.StringVar(&flags.Service, "service", "", "Control the service: install, uninstall, start, stop, restart")

	flag.Parse()

	args := flag.Args()
	var subcommand string
	if len(args) > 0 {
		subcommand = args[0]
	}

	return flags, subcommand
}

// ParseDiagnosisFlags reads the diagnose subcommand's own flags from the
// arguments after "diagnose". Call after ParseFlags.
func ParseDiagnosisFlags() DiagnosisFlags {
	flags := DiagnosisFlags{}

	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	fs.IntVar(&flags.Level, "level", 1, "Verbosity level (1-3)")
	fs.StringVar(&flags.OutputFile, "output", "", "File to save the report to")

	args := flag.Args()
	if len(args) > 1 {
		fs.Parse(args[1:])
	}

	return flags
}

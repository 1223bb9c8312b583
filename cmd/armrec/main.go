package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/armrec/pkg/config"
)

type Options struct {
	Config string `short:"c" long:"config" description:"Config file (default: armrec.yaml in the working directory or ~/.config/armrec)"`

	Record  RecordCommand  `command:"record" alias:"rec" description:"Mirror the master arm onto the follower and record snapshots"`
	Setup   SetupCommand   `command:"setup" description:"Probe serial ports, assign master and follower, save the config"`
	Ports   PortsCommand   `command:"ports" description:"List candidate serial devices"`
	Inspect InspectCommand `command:"inspect" description:"Decode snapshot files and print their contents"`
	Runs    RunsCommand    `command:"runs" description:"List recorded runs from the catalog"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armrec - leader/follower arm teleoperation recorder"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(opts.Config)
}

// configPath is where setup saves: the loaded file, else armrec.yaml in the working directory.
func configPath(cfg *config.Config) string {
	if opts.Config != "" {
		return opts.Config
	}
	if cfg.Path() != "" {
		return cfg.Path()
	}
	return config.DefaultConfigFile
}

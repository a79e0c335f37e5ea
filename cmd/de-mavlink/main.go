package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HefnySco/droneengage-mavlink/internal/config"
	"github.com/HefnySco/droneengage-mavlink/internal/hardware"
)

// Version information set at build time.
var version = "dev"

type options struct {
	configPath  string
	localPath   string
	serial      bool
	version     bool
	versionOnly bool
}

func main() {
	instance := time.Now()
	serial := hardware.Serial(hardware.CPUInfoPath, hardware.MachineIDPath)

	cmd := newRootCmd(os.Stdout, serial, func(opts options) error {
		return run(opts, instance, serial)
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, serial string, run func(options) error) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "de-mavlink",
		Short:         "Drone-Engage flight controller module",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.versionOnly:
				fmt.Fprintln(out, version)
				return nil
			case opts.version:
				printVersion(out)
				return nil
			case opts.serial:
				printVersion(out)
				fmt.Fprintf(out, "Serial Number: %s\n", serial)
				return nil
			}
			return run(opts)
		},
	}
	cmd.SetOut(out)

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "name and path of the configuration file")
	flags.StringVarP(&opts.localPath, "bconfig", "b", config.DefaultLocalPath, "name and path of the local state file")
	flags.BoolVarP(&opts.serial, "serial", "s", false, "display the serial number needed for registration")
	flags.BoolVarP(&opts.version, "version", "v", false, "display version")
	flags.BoolVarP(&opts.versionOnly, "versiononly", "o", false, "display the version number only")

	return cmd
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "Drone-Engage FCB Module version %s\n", version)
}

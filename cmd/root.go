// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/hepagent/internal/config"
	"firestige.xyz/hepagent/internal/log"
)

// Version is set at build time with -ldflags "-X firestige.xyz/hepagent/cmd.Version=...".
var Version = "0.1.0"

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hepagent",
	Short: "hepagent - HEP3 capture agent and codec toolkit",
	Long: `hepagent encodes captured VoIP traffic into HEP3 (Homer Encapsulation
Protocol v3) packets and delivers them to Homer/sipcapture collectors.

Commands:
  replay    read a pcap/pcapng file and send every packet as HEP3
  encode    build a single HEP3 packet from flags
  inspect   decode HEP3 packets from a file, stdin or a pcap
  validate  check a configuration file`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (debug/info/warn/error)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the --config file, or the defaults when none is given,
// and initialises logging from it.
func loadConfig() (*config.GlobalConfig, error) {
	cfg, err := readConfig(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(path string) (*config.GlobalConfig, error) {
	if path == "" {
		return config.Default()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	return config.Load(path)
}

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without sending anything.

Examples:
  hepagent validate -c /etc/hepagent/config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := readConfig(path)
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "VALID: capture_id=%d node=%q transport=%s routing=%s servers=[%s]\n",
		cfg.Agent.CaptureID,
		cfg.Agent.NodeName,
		cfg.Sender.Transport,
		cfg.Sender.Routing,
		strings.Join(cfg.Sender.Servers, ", "),
	)
	return nil
}

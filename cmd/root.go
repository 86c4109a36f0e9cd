package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	awsclient "github.com/fraclad/s3-insight/aws"
	"github.com/fraclad/s3-insight/config"
	"github.com/fraclad/s3-insight/logger"
)

// Version is set at build time with -ldflags "-X github.com/fraclad/s3-insight/cmd.Version=..."
var Version = "dev"

var (
	configFile string
	cfg        *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "s3-insight",
	Short: "Inventory and summarize the S3 storage of an account",
	Long: `s3-insight lists every bucket of an account into a line-delimited JSON
record stream and summarizes that stream per bucket and for the whole account.

Buckets too large to enumerate are sampled and their figures extrapolated.

Commands:
  inventory  list buckets into a record stream
  report     aggregate a record stream into summary.json and CSV tables
  stats      print account figures from a record stream`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd)
		if err != nil {
			return err
		}
		if err := logger.Setup(loaded.LogLevel, loaded.LogFormat); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console or json)")
	pf.StringP("profile", "p", "", "AWS profile name to use")
	pf.StringP("region", "r", "", "AWS region (bucket regions are looked up as needed)")
	pf.String("endpoint", "", "S3-compatible endpoint URL")
	pf.Bool("path-style", false, "Use path-style bucket addressing")

	rootCmd.AddCommand(inventoryCmd, reportCmd, statsCmd, versionCmd)
}

func newClient(ctx context.Context) (*awsclient.Client, error) {
	client, err := awsclient.NewClient(ctx, awsclient.Options{
		Profile:         cfg.AWS.Profile,
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		PathStyle:       cfg.AWS.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS client: %w", err)
	}
	return client, nil
}

// splitNames parses a comma-separated list, dropping empty entries.
func splitNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

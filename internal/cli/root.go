package cli

import (
	"fmt"

	"crawlsync/internal/config"
	"crawlsync/pkg/idgen"
	"crawlsync/pkg/logger"

	"github.com/spf13/cobra"
)

// RootOptions 全局参数
type RootOptions struct {
	ConfigPath string
	WorkerID   int64

	cfg *config.Config
}

// Config 在 PersistentPreRunE 之后可用
func (o *RootOptions) Config() *config.Config { return o.cfg }

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crawlsync",
		Short: "crawlsync - crawl content and keep the search index in sync",
		Long: `crawlsync crawls pages and RSS/Atom feeds, stores normalized resources and
propagates every change to the search index through a transactional outbox.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if _, err := logger.Init(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development}); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if err := idgen.Init(opts.WorkerID); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (yaml)")
	cmd.PersistentFlags().Int64Var(&opts.WorkerID, "worker-id", 1, "snowflake worker id (0-1023)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewCrawlFeedCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))

	return cmd
}

// Execute 入口
func Execute() error {
	return NewRootCommand().Execute()
}

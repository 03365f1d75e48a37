package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hlclock/internal/config"
	"hlclock/internal/logging"
	"hlclock/internal/node"
)

func (c *command) initServeCmd() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a clock node",
		Long: `Run a clock node.

Configuration is read from HLC_* environment variables; flags override them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.Parse(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("%s: %w", optionNameVerbosity, err)
			}

			n, err := node.New(cfg, logger, node.WithWallClock(c.wall))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return n.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String(optionNameNodeID, "", "node identifier (HLC_NODE_ID)")
	flags.String(optionNameListenAddr, "", "gRPC listen address (HLC_LISTEN_ADDR)")
	flags.String(optionNameHTTPAddr, "", "HTTP listen address, empty string disables it (HLC_HTTP_ADDR)")
	flags.String(optionNamePeers, "", "peers as id=addr,id=addr (HLC_PEERS)")
	flags.String(optionNameDataDir, "", "checkpoint directory, in memory if empty (HLC_DATA_DIR)")
	flags.Duration(optionNameSyncInterval, 0, "peer synchronization interval (HLC_SYNC_INTERVAL)")
	flags.Duration(optionNameCheckpointInterval, 0, "checkpoint interval (HLC_CHECKPOINT_INTERVAL)")
	flags.Duration(optionNameMaxOffset, 0, "max accepted remote clock offset, 0 disables the check (HLC_MAX_OFFSET)")
	flags.String(optionNameVerbosity, "", "log verbosity: panic, fatal, error, warning, info, debug, trace (HLC_LOG_LEVEL)")

	c.root.AddCommand(cmd)
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) (err error) {
	flags := cmd.Flags()
	if flags.Changed(optionNameNodeID) {
		cfg.NodeID, _ = flags.GetString(optionNameNodeID)
	}
	if flags.Changed(optionNameListenAddr) {
		cfg.ListenAddr, _ = flags.GetString(optionNameListenAddr)
	}
	if flags.Changed(optionNameHTTPAddr) {
		cfg.HTTPAddr, _ = flags.GetString(optionNameHTTPAddr)
	}
	if flags.Changed(optionNamePeers) {
		raw, _ := flags.GetString(optionNamePeers)
		if err := cfg.Peers.Decode(raw); err != nil {
			return fmt.Errorf("%s: %w", optionNamePeers, err)
		}
	}
	if flags.Changed(optionNameDataDir) {
		cfg.DataDir, _ = flags.GetString(optionNameDataDir)
	}
	if flags.Changed(optionNameSyncInterval) {
		cfg.SyncInterval, _ = flags.GetDuration(optionNameSyncInterval)
	}
	if flags.Changed(optionNameCheckpointInterval) {
		cfg.CheckpointInterval, _ = flags.GetDuration(optionNameCheckpointInterval)
	}
	if flags.Changed(optionNameMaxOffset) {
		cfg.MaxOffset, _ = flags.GetDuration(optionNameMaxOffset)
	}
	if flags.Changed(optionNameVerbosity) {
		cfg.LogLevel, _ = flags.GetString(optionNameVerbosity)
	}
	return nil
}

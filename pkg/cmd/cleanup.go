package cmd

import (
	contextPkg "context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/agrivault/pkg/configs"
	"github.com/yeisme/agrivault/pkg/context"
	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/internal/storage"
)

var (
	forceCleanup bool

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "run a single smart cleanup pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return fmt.Errorf("init config: %w", err)
			}

			ctx := contextPkg.Background()

			manager, err := storage.Init(ctx)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}

			ctx = context.WithStorageManager(ctx, manager)

			result := service.NewCleanupService(ctx).PerformSmartCleanup(ctx, "", forceCleanup)
			fmt.Fprintf(cmd.OutOrStdout(), "success: %v\nbytes freed: %d\nmessage: %s\n",
				result.Success, result.BytesFreed, result.Message)

			return nil
		},
	}
)

// registerCleanupCommands 注册清理命令.
func registerCleanupCommands() {
	cleanupCmd.Flags().BoolVarP(&forceCleanup, "force", "f", false, "run all stages even below the trigger threshold")

	rootCmd.AddCommand(cleanupCmd)
}

package cmd

import (
	"fmt"
	"os"

	"Bt1QLooper/config"
	"Bt1QLooper/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "1qlooper",
	Short: "1QLooper 是一个多轨循环混音服务",
	Long: `1QLooper 多轨循环混音后端：录入短音频片段，按音轨调整速度和音量，
把整个会话按主循环重复指定次数并带淡出地导出为一个成品。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		// 不带子命令时直接起服务
		serverCmd.Run(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

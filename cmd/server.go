package cmd

import (
	"Bt1QLooper/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动1QLooper服务器",
	Long:  `启动1QLooper混音系统的HTTP服务器，提供音轨管理、循环时序和混音导出API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

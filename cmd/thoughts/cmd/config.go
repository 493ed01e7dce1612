package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long:  "Shows paths, daemon status, and the effective settings. No daemon required.",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	settings, paths, err := loadSettings()
	if err != nil {
		return err
	}
	sockPath := socket.SocketPath(projectRoot())

	client := socket.NewClient(sockPath)
	daemonRunning := client.Ping()
	daemonStatus := fmt.Sprintf("%s✗ not running%s", colorYellow, colorReset)
	if daemonRunning {
		daemonStatus = fmt.Sprintf("%s✓ running%s", colorGreen, colorReset)
	}

	fmt.Printf("%s⚡ thoughts config%s\n", colorBold, colorReset)
	fmt.Printf("  Root:       %s\n", projectRoot())
	fmt.Printf("  DB:         %s\n", paths.DB)
	cfgFile := paths.Config
	if configPath != "" {
		cfgFile = configPath
	}
	fmt.Printf("  Config:     %s\n", cfgFile)
	fmt.Printf("  Socket:     %s\n", sockPath)
	fmt.Printf("  Daemon:     %s\n", daemonStatus)

	if daemonRunning {
		if portData, err := os.ReadFile(paths.PortFile); err == nil {
			fmt.Printf("  Dashboard:  http://localhost:%s\n", strings.TrimSpace(string(portData)))
		}
	}

	out, err := settings.YAML()
	if err != nil {
		return err
	}
	fmt.Printf("\n%s", out)
	return nil
}

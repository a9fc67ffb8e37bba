package main

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/internal/tui"
	"HealthForce-Goa/pkg/logger"
)

func newUICmd(root *rootOptions) *cobra.Command {
	var (
		page string
		zone string
		poll time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive terminal shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			// 终端由界面占用，日志改写到文件。
			logCfg := cfg.Log
			logCfg.OutputPaths = []string{cfg.UI.LogFile}
			logCfg.Service = "healthforce-ui"
			if err := logger.Init(logCfg); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer logger.Sync()

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			if page == "" {
				page = cfg.UI.InitialPage
			}
			if zone == "" {
				zone = cfg.Gateway.DefaultZone
			}

			ctx := cmd.Context()
			nav := navigation.New(navigation.WithInitialPage(navigation.ParsePage(page)))
			model := tui.New(ctx, nav, client, tui.WithZone(zone), tui.WithPollInterval(poll))
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

			cancel := nav.Subscribe(func(s navigation.State) {
				go program.Send(tui.NavChangedMsg(s))
			})
			defer cancel()

			logger.L().Info("启动终端界面", slog.String("api", client.URL("")), slog.String("page", nav.State().Page.String()))
			_, err = program.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "initial page (home, agents, architecture, impact, demo, login)")
	cmd.Flags().StringVar(&zone, "zone", "", "location zone used for surge runs and forecasts")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "surge status poll interval")
	return cmd
}

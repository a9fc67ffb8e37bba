package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

type callOptions struct {
	zone         string
	currentTime  string
	approved     bool
	modifiedPlan string
	identifier   string
	password     string
	data         string
}

// operation 把命令行参数转换成一次客户端调用。
type operation struct {
	args int
	run  func(cmd *cobra.Command, c *healthforce.Client, o *callOptions, args []string) (any, error)
}

var operations = map[string]operation{
	healthforce.OpHealthCheck: {run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, _ []string) (any, error) {
		return c.HealthCheck(cmd.Context())
	}},
	healthforce.OpRunSurge: {run: func(cmd *cobra.Command, c *healthforce.Client, o *callOptions, _ []string) (any, error) {
		var opts []healthforce.SurgeOption
		if o.zone != "" {
			opts = append(opts, healthforce.WithLocationZone(o.zone))
		}
		if o.currentTime != "" {
			opts = append(opts, healthforce.WithCurrentTime(o.currentTime))
		}
		return c.RunSurge(cmd.Context(), opts...)
	}},
	healthforce.OpGetSurgeStatus: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, args []string) (any, error) {
		return c.GetSurgeStatus(cmd.Context(), args[0])
	}},
	healthforce.OpListSurgeRuns: {run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, _ []string) (any, error) {
		return c.ListSurgeRuns(cmd.Context())
	}},
	healthforce.OpApproveAction: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, o *callOptions, args []string) (any, error) {
		var opts []healthforce.ApprovalOption
		if cmd.Flags().Changed("modified-plan") {
			opts = append(opts, healthforce.WithModifiedPlan(o.modifiedPlan))
		}
		return c.ApproveAction(cmd.Context(), args[0], o.approved, opts...)
	}},
	healthforce.OpBookDemo: {run: func(cmd *cobra.Command, c *healthforce.Client, o *callOptions, _ []string) (any, error) {
		var payload any
		if err := json.Unmarshal([]byte(o.data), &payload); err != nil {
			return nil, fmt.Errorf("--data 不是合法的 JSON: %w", err)
		}
		return c.BookDemo(cmd.Context(), payload)
	}},
	healthforce.OpLogin: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, o *callOptions, args []string) (any, error) {
		return c.Login(cmd.Context(), args[0], o.identifier, o.password)
	}},
	healthforce.OpGetDashboardData: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, args []string) (any, error) {
		return c.GetDashboardData(cmd.Context(), args[0])
	}},
	healthforce.OpGetInventory: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, args []string) (any, error) {
		return c.GetInventory(cmd.Context(), args[0])
	}},
	healthforce.OpGetForecast: {args: 1, run: func(cmd *cobra.Command, c *healthforce.Client, _ *callOptions, args []string) (any, error) {
		return c.GetForecast(cmd.Context(), args[0])
	}},
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newCallCmd(root *rootOptions) *cobra.Command {
	o := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <operation> [argument]",
		Short: "Invoke one backend operation and print the JSON result",
		Long: "Invoke one backend operation and print the JSON result.\n\nOperations: " +
			strings.Join(operationNames(), ", "),
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: operationNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := operations[args[0]]
			if !ok {
				return fmt.Errorf("未知操作 %q，可选: %s", args[0], strings.Join(operationNames(), ", "))
			}
			if len(args)-1 != op.args {
				return fmt.Errorf("操作 %s 需要 %d 个参数", args[0], op.args)
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			// 标准输出只留给结果。
			logCfg := cfg.Log
			if len(logCfg.OutputPaths) == 0 {
				logCfg.OutputPaths = []string{"stderr"}
			}
			logCfg.Service = "healthforce"
			if err := logger.Init(logCfg); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer logger.Sync()

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			result, err := op.run(cmd, client, o, args[1:])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&o.zone, "zone", "", "runSurge: location zone (default "+healthforce.DefaultLocationZone+")")
	cmd.Flags().StringVar(&o.currentTime, "current-time", "", "runSurge: ISO-8601 analysis time")
	cmd.Flags().BoolVar(&o.approved, "approved", true, "approveAction: approve (true) or reject (false)")
	cmd.Flags().StringVar(&o.modifiedPlan, "modified-plan", "", "approveAction: modified execution plan")
	cmd.Flags().StringVar(&o.identifier, "identifier", "", "login: employee id, email or mobile number")
	cmd.Flags().StringVar(&o.password, "password", "", "login: password")
	cmd.Flags().StringVar(&o.data, "data", "{}", "bookDemo: JSON payload")
	return cmd
}

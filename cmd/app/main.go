package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"StratGov/internal/di"
	"StratGov/internal/service/isogate"
	"StratGov/pkg/config"
	pkgkafka "StratGov/pkg/kafka"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "stratgov",
		Short:         "Governance engine for hypothesis-driven trading strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(
		serveCmd(),
		gateCmd(),
		poolCmd(),
		approveCmd(),
		sunsetCmd(),
		rejectCmd(),
		alertsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithEnv(configPath)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the governance engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}

func gateCmd() *cobra.Command {
	var alphaDir string
	var modulePath string

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check the isolation boundary; exits non-zero on any violation",
		Long: "Scans the alpha source tree for imports of governance internals and " +
			"validates every constraint document against the actions allowlist. " +
			"Intended for CI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if alphaDir != "" {
				scanner := isogate.NewScanner(modulePath)
				violations, err := scanner.ScanDir(alphaDir)
				if err != nil {
					return err
				}
				for _, v := range violations {
					fmt.Fprintln(os.Stderr, v.Error())
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d isolation violation(s)", len(violations))
				}
			}

			if err := isogate.CheckConstraintDocs(cfg.Definitions.Constraints); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				return fmt.Errorf("constraint document rejected")
			}

			fmt.Println("gate: clean")
			return nil
		},
	}
	cmd.Flags().StringVar(&alphaDir, "alpha", "", "alpha source tree to scan (skipped when empty)")
	cmd.Flags().StringVar(&modulePath, "module", "StratGov", "module path of the governance engine")
	return cmd
}

func poolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Build the candidate pool once and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			builder, err := di.InitializePoolBuilder(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			pool, err := builder.Build(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pool)
		},
	}
}

func lifecycleCmd(use, short string, run func(ctx context.Context, cfg *config.Config, id, actor string) error) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   use + " <hypothesis-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return run(ctx, cfg, args[0], actor)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "who is performing this action")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func approveCmd() *cobra.Command {
	return lifecycleCmd("approve", "Activate a DRAFT hypothesis",
		func(ctx context.Context, cfg *config.Config, id, actor string) error {
			lc, err := di.InitializeLifecycle(cfg)
			if err != nil {
				return err
			}
			h, err := lc.Approve(ctx, id, actor)
			if err != nil {
				return err
			}
			fmt.Printf("hypothesis %s is now %s\n", h.ID, h.Status)
			return nil
		})
}

func sunsetCmd() *cobra.Command {
	return lifecycleCmd("sunset", "Retire a hypothesis",
		func(ctx context.Context, cfg *config.Config, id, actor string) error {
			lc, err := di.InitializeLifecycle(cfg)
			if err != nil {
				return err
			}
			h, err := lc.Sunset(ctx, id, actor)
			if err != nil {
				return err
			}
			fmt.Printf("hypothesis %s is now %s\n", h.ID, h.Status)
			return nil
		})
}

func rejectCmd() *cobra.Command {
	return lifecycleCmd("reject", "Reject a hypothesis",
		func(ctx context.Context, cfg *config.Config, id, actor string) error {
			lc, err := di.InitializeLifecycle(cfg)
			if err != nil {
				return err
			}
			h, err := lc.Reject(ctx, id, actor)
			if err != nil {
				return err
			}
			fmt.Printf("hypothesis %s is now %s\n", h.ID, h.Status)
			return nil
		})
}

// alertsCmd tails the Kafka alert topic, for operators without a
// delivery pipeline hooked up yet.
func alertsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Tail the alert topic and print alerts as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Alerts.Sink != "kafka" {
				return fmt.Errorf("alerts.sink is %q; tailing requires kafka", cfg.Alerts.Sink)
			}

			consumer, err := pkgkafka.NewConsumer(
				pkgkafka.WithConsumerBrokers(cfg.Alerts.Brokers),
				pkgkafka.WithConsumerGroupID(group),
			)
			if err != nil {
				return err
			}
			consumer.RegisterHandler(alertPrinter{topic: cfg.Alerts.Topic})

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				<-sigCh
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = consumer.Stop(ctx)
			}()

			return consumer.Start()
		},
	}
	cmd.Flags().StringVar(&group, "group", "stratgov-alerts-tail", "consumer group id")
	return cmd
}

type alertPrinter struct {
	topic string
}

func (p alertPrinter) Topic() string { return p.topic }

func (p alertPrinter) Handle(_ context.Context, data []byte) error {
	fmt.Println(string(data))
	return nil
}

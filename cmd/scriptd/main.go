// Command scriptd runs the script registry/execution HTTP service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scriptrunner/scriptd/internal/api"
	"github.com/scriptrunner/scriptd/internal/audit"
	"github.com/scriptrunner/scriptd/internal/config"
	"github.com/scriptrunner/scriptd/internal/execcache"
	"github.com/scriptrunner/scriptd/internal/executor"
	"github.com/scriptrunner/scriptd/internal/fanout"
	"github.com/scriptrunner/scriptd/internal/gate"
	"github.com/scriptrunner/scriptd/internal/registry"
	"github.com/scriptrunner/scriptd/internal/scanner"
	"github.com/scriptrunner/scriptd/internal/supervisor"
)

func main() {
	root := &cobra.Command{
		Use:   "scriptd",
		Short: "script registry and execution service",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var addrFlag string
	var noAudit bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addrFlag != "" {
				cfg.ListenAddr = addrFlag
			}
			if err := os.MkdirAll(cfg.ScriptsDir, 0o755); err != nil {
				return fmt.Errorf("ensure scripts dir: %w", err)
			}

			reg := registry.New()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc := scanner.New(cfg.ScriptsDir, cfg.Extension, cfg.ScanInterval, reg)
			go sc.Run(ctx)

			var auditStore *audit.Store
			if !noAudit {
				auditStore, err = audit.Open(cfg.AuditDBPath)
				if err != nil {
					return fmt.Errorf("open audit store: %w", err)
				}
				defer auditStore.Close()
				if info, statErr := os.Stat(cfg.AuditDBPath); statErr == nil {
					log.Printf("[scriptd] audit log %s (%s)", cfg.AuditDBPath, humanize.Bytes(uint64(info.Size())))
				}
			}

			sup := supervisor.New(supervisor.Config{
				Interpreter: cfg.Interpreter,
				Deadline:    cfg.Deadline,
				Grace:       cfg.Grace,
			})
			exec := executor.New(cfg.ScriptsDir, cfg.Extension, execcache.New(), gate.New(cfg.Concurrency), sup)
			runner := fanout.New(exec, reg, auditStore)
			srv := api.New(cfg.ScriptsDir, cfg.Extension, reg, runner, auditStore)

			httpSrv := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: srv,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("[scriptd] listening on %s (scripts=%s interpreter=%s concurrency=%d deadline=%s scan_interval=%s)",
					cfg.ListenAddr, cfg.ScriptsDir, cfg.Interpreter, cfg.Concurrency, cfg.Deadline, cfg.ScanInterval)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Println("[scriptd] shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Deadline+cfg.Grace)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to scriptd.yaml")
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "disable the sqlite audit log")

	return cmd
}

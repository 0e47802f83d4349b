package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/autocrew/autocrew/internal/api"
	"github.com/autocrew/autocrew/internal/config"
	"github.com/autocrew/autocrew/internal/kb"
	"github.com/autocrew/autocrew/internal/provision"
	"github.com/autocrew/autocrew/internal/storage"
	"github.com/autocrew/autocrew/internal/tables"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AutoCrew server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP admin tools over stdio")
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "autocrew version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	creator := tables.NewCreator(store.Pool())
	provisioner := provision.New(store, creator)
	webhook := kb.NewWebhookClient(cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Timeout)
	kbService := kb.NewService(store, webhook)
	chunks := kb.NewChunkReader(store.Pool())

	handler := api.NewAppHandler(api.AppDeps{
		Store:       store,
		Provisioner: provisioner,
		KB:          kbService,
		Chunks:      chunks,
		Token:       cfg.Server.APIToken,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Documents stuck in "processing" (crash mid-upload, lost webhook
	// response) get swept to "error" in the background.
	sweeper := kb.NewSweeper(store, cfg.Sweeper.MaxAge, cfg.Sweeper.Poll)
	go sweeper.Run(ctx)

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:       store,
			Provisioner: provisioner,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Server.MaxConns)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "autocrew listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

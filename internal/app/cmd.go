package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	migrateUp   = "up"
	migrateDown = "down"
)

// NewRootCommand はmaltresponseのコマンドツリーを構築する。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := Init(w)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		slog.Info("starting application",
			slog.String("command", "serve"),
			slog.String("port", cfg.ServerPort),
			slog.String("base_url", cfg.BaseURL),
		)
		return runServe(cfg)
	}

	root := &cobra.Command{
		Use:           "maltresponse",
		Short:         "MaltResponse web application",
		Args:          cobra.NoArgs,
		RunE:          serve,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(w)
	root.SetErr(w)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back profile database migrations",
		Long: `Run the embedded profile migrations against DATABASE_URL.

Examples:
  maltresponse migrate
  maltresponse migrate down`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{migrateUp, migrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := migrateUp
			if len(args) == 1 {
				direction = args[0]
			}
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg, direction)
		},
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	var healthURL string
	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := healthURL
			if url == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				url = fmt.Sprintf("http://localhost:%s/health", port)
			}
			return checkHealth(url)
		},
	}
	healthcheckCmd.Flags().StringVar(&healthURL, "url", "", "health endpoint URL (default http://localhost:$SERVER_PORT/health)")

	root.AddCommand(serveCmd, migrateCmd, healthcheckCmd)
	return root
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

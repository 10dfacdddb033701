package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/authdemo/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はドキュメントストアのスキーマを作成することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandVersion はバージョンを表示することを示す。
	CommandVersion Command = "version"
)

// NewRootCommand はサブコマンドを登録したルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// wはログとコマンド出力の書き込み先。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := newServeCmd(w)

	root := &cobra.Command{
		Use:          "authdemo",
		Short:        "Firebase Authentication demo server",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		serve,
		newMigrateCmd(w),
		newHealthcheckCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runServe(cfg)
		},
	}
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Create the user document store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg)
		},
	}
}

// newHealthcheckCmd は軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, _ := cmd.Flags().GetString("port")
			return runHealthcheck(port)
		},
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8000"
	}
	cmd.Flags().StringP("port", "p", port, "Server port to probe")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandVersion),
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", config.AppTitle, config.AppVersion)
		},
	}
}

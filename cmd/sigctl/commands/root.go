package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	env       string
	verbose   bool
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sigctl",
	Short: "SigTech framework API client",
	Long: `sigctl - SigTech framework API client

전략 빌드, 데이터셋 업로드, 추출 작업 결과 조회, 데이터 검증을 하나의 CLI로.

Usage:
  go run ./cmd/sigctl [command]

Examples:
  go run ./cmd/sigctl status
  go run ./cmd/sigctl strategy run -f book.yaml --history
  go run ./cmd/sigctl datasets cp prices.csv prices
  go run ./cmd/sigctl jobs ls`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (json|console)")
}

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/sigapi/internal/store"
	"github.com/wonny/sigapi/internal/strategyspec"
	"github.com/wonny/sigapi/pkg/database"
)

// strategyCmd represents the strategy command
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "전략 북 검증 및 빌드",
	Long: `YAML 전략 북(book.yaml)을 검증하고 프레임워크 세션에서 빌드합니다.

Subcommands:
  check  - 네트워크 없이 북 검증
  run    - 세션 생성 후 전략 빌드

Example:
  go run ./cmd/sigctl strategy check -f book.yaml
  go run ./cmd/sigctl strategy run -f book.yaml --history
  go run ./cmd/sigctl strategy run -f book.yaml --export-db`,
}

var (
	strategyCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "북 검증 (오류 및 경고)",
		RunE:  runStrategyCheck,
	}

	strategyRunCmd = &cobra.Command{
		Use:   "run",
		Short: "북의 모든 전략 빌드",
		RunE:  runStrategyRun,
	}
)

var (
	// Strategy flags
	bookFile    string
	showHistory bool
	historyTail int
	exportToDB  bool
)

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyCheckCmd)
	strategyCmd.AddCommand(strategyRunCmd)

	strategyCmd.PersistentFlags().StringVarP(&bookFile, "file", "f", "book.yaml", "strategy book (YAML)")
	strategyRunCmd.Flags().BoolVar(&showHistory, "history", false, "wait for and print each strategy's history")
	strategyRunCmd.Flags().IntVar(&historyTail, "tail", 5, "history points to print per strategy")
	strategyRunCmd.Flags().BoolVar(&exportToDB, "export-db", false, "store histories in PostgreSQL (DATABASE_URL)")
}

func printWarnings(cmd *cobra.Command, book *strategyspec.Book) {
	for _, w := range strategyspec.Warn(book) {
		PrintWarning(cmd.OutOrStdout(), fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
}

func runStrategyCheck(cmd *cobra.Command, args []string) error {
	book, _, err := strategyspec.Load(bookFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	hash, err := strategyspec.Hash(book)
	if err != nil {
		return err
	}

	PrintHeader(out, "Strategy book "+book.Meta.BookID)
	PrintKeyValue(out, "Version", book.Meta.Version, 10)
	PrintKeyValue(out, "Hash", hash, 10)
	PrintKeyValue(out, "Strategies", fmt.Sprint(len(book.Strategies)), 10)
	PrintSeparator(out)

	printWarnings(cmd, book)
	PrintSuccess(out, "Book is valid")
	return nil
}

func runStrategyRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	book, data, err := strategyspec.Load(bookFile)
	if err != nil {
		return err
	}
	printWarnings(cmd, book)

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	// 1. Session
	session, cleanup, err := initSession(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	defer cleanup()

	// 2. Build
	result, err := strategyspec.NewBuilder(session, log).Build(ctx, book, data)
	if err != nil {
		return err
	}

	PrintHeader(out, "Built "+book.Meta.BookID)
	PrintKeyValue(out, "Session", result.Snapshot.SessionID, 8)
	PrintKeyValue(out, "Hash", result.Snapshot.BookHash, 8)
	PrintSeparator(out)

	rows := make([][]string, 0, len(result.Order))
	for _, ref := range result.Order {
		obj, _ := result.Get(ref)
		id, _ := obj.ObjectID()
		rows = append(rows, []string{ref, id})
	}
	PrintTable(out, []string{"REF", "OBJECT ID"}, rows)

	if !showHistory && !exportToDB {
		return nil
	}

	// 3. History (optional export)
	var repo *store.HistoryRepository
	if exportToDB {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo = store.NewHistoryRepository(db.Pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
	}

	for _, ref := range result.Order {
		history, err := result.History(ctx, ref)
		if err != nil {
			if errors.Is(err, strategyspec.ErrNoHistory) {
				continue
			}
			return fmt.Errorf("history of %s: %w", ref, err)
		}

		if showHistory {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "📈 %s (%d points)\n", ref, history.Len())
			start := history.Len() - historyTail
			if start < 0 {
				start = 0
			}
			for _, p := range history[start:] {
				PrintKeyValue(out, p.Time.Format("2006-01-02"), formatValue(p.Value), 10)
			}
		}

		if repo != nil {
			name := book.Meta.BookID + "." + ref
			n, err := repo.Save(ctx, name, history)
			if err != nil {
				return err
			}
			PrintSuccess(out, fmt.Sprintf("Exported %d points of %s", n, name))
		}
	}
	return nil
}

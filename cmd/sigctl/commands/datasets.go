package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/sigapi/internal/datasets"
	"github.com/wonny/sigapi/internal/scheduler"
	schedjobs "github.com/wonny/sigapi/internal/scheduler/jobs"
)

// datasetsCmd represents the datasets command
var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "데이터셋 업로드 및 관리",
	Long: `플랫폼 데이터셋에 CSV 파일을 업로드하고 조회/삭제합니다.

Identifier 문법:
  prices          - 데이터셋 (ls: 파일 목록, rm: 데이터셋 삭제)
  price*          - 데이터셋 패턴 (ls 전용)
  prices/         - 데이터셋의 모든 파일
  prices/2024*    - 데이터셋의 파일 패턴

Example:
  go run ./cmd/sigctl datasets cp prices.csv prices --mode overwrite
  go run ./cmd/sigctl datasets ls 'price*'
  go run ./cmd/sigctl datasets rm 'prices/2024*' --dry-run
  go run ./cmd/sigctl datasets sync prices.csv prices --schedule '@every 15m'`,
}

var (
	datasetsCpCmd = &cobra.Command{
		Use:   "cp [file.csv] [dataset_id]",
		Short: "CSV 파일 업로드",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runDatasetsCp,
	}

	datasetsLsCmd = &cobra.Command{
		Use:   "ls [identifier]",
		Short: "데이터셋 또는 파일 목록",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDatasetsLs,
	}

	datasetsRmCmd = &cobra.Command{
		Use:   "rm [identifier]",
		Short: "데이터셋 또는 파일 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  runDatasetsRm,
	}

	datasetsSyncCmd = &cobra.Command{
		Use:   "sync [file.csv] [dataset_id]",
		Short: "변경 시 주기적으로 재업로드",
		Long: `파일이 변경될 때마다 스케줄에 따라 데이터셋에 다시 업로드합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDatasetsSync,
	}
)

var (
	// Datasets flags
	uploadMode    string
	uploadWorkers int
	dryRun        bool
	syncSchedule  string
	noProgress    bool
)

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsCpCmd)
	datasetsCmd.AddCommand(datasetsLsCmd)
	datasetsCmd.AddCommand(datasetsRmCmd)
	datasetsCmd.AddCommand(datasetsSyncCmd)

	for _, c := range []*cobra.Command{datasetsCpCmd, datasetsSyncCmd} {
		c.Flags().StringVar(&uploadMode, "mode", datasets.ModeAppend, "append|overwrite")
		c.Flags().IntVar(&uploadWorkers, "workers", 0, "parallel part uploads (0 = SIGTECH_UPLOAD_WORKERS)")
	}
	datasetsCpCmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	datasetsRmCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be deleted")
	datasetsSyncCmd.Flags().StringVar(&syncSchedule, "schedule", "@every 15m", "cron schedule (with seconds) or @every/@hourly")
}

// uploadTarget returns the dataset id given explicitly or derived from the file name
func uploadTarget(args []string) (file, datasetID string) {
	file = args[0]
	if len(args) == 2 {
		return file, args[1]
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return file, datasets.SafeName(base)
}

func newDatasetsClient() (*datasets.Client, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return datasets.New(cfg, log)
}

func runDatasetsCp(cmd *cobra.Command, args []string) error {
	client, err := newDatasetsClient()
	if err != nil {
		return err
	}
	file, datasetID := uploadTarget(args)
	out := cmd.OutOrStdout()

	opts := datasets.UploadOptions{Mode: uploadMode, Workers: uploadWorkers}
	finish := func() {}
	if !noProgress {
		opts.Progress, finish = newPartsBar(cmd.ErrOrStderr(), "Uploading "+filepath.Base(file))
	}

	result, err := client.Upload(cmd.Context(), file, datasetID, opts)
	finish()
	if err != nil {
		return err
	}

	PrintHeader(out, "Upload "+datasetID)
	PrintKeyValue(out, "Mode", uploadMode, 8)
	PrintKeyValue(out, "Parts", fmt.Sprint(len(result.Parts)), 8)
	PrintKeyValue(out, "Files", fmt.Sprint(result.Files), 8)
	PrintKeyValue(out, "Duration", result.Duration.String(), 8)
	PrintSuccess(out, "Upload completed")
	return nil
}

func runDatasetsLs(cmd *cobra.Command, args []string) error {
	client, err := newDatasetsClient()
	if err != nil {
		return err
	}
	identifier := ""
	if len(args) == 1 {
		identifier = args[0]
	}

	names, err := client.Ls(cmd.Context(), identifier)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func runDatasetsRm(cmd *cobra.Command, args []string) error {
	client, err := newDatasetsClient()
	if err != nil {
		return err
	}
	if err := client.Rm(cmd.Context(), args[0], dryRun); err != nil {
		return err
	}
	if dryRun {
		PrintInfo(cmd.OutOrStdout(), "Dry run, nothing deleted")
		return nil
	}
	PrintSuccess(cmd.OutOrStdout(), "Deleted "+args[0])
	return nil
}

func runDatasetsSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := datasets.New(cfg, log)
	if err != nil {
		return err
	}
	file, datasetID := uploadTarget(args)
	if _, err := os.Stat(file); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	sched := scheduler.New(log)
	job := schedjobs.NewDatasetSyncJob(client, file, datasetID, syncSchedule,
		datasets.UploadOptions{Mode: uploadMode, Workers: uploadWorkers}, log)
	if err := sched.AddJob(job); err != nil {
		return err
	}

	// 시작 시 한 번 즉시 동기화
	if result, err := sched.RunNow(job.Name()); err != nil || !result.Success {
		PrintWarning(out, "Initial sync failed, will retry on schedule")
	}

	sched.Start()
	next, _ := sched.NextRun(job.Name())
	PrintSuccess(out, fmt.Sprintf("Syncing %s → %s (%s), next run %s", file, datasetID, syncSchedule, formatTime(next)))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-cmd.Context().Done()
	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()

	stats := sched.GetJobStats()[job.Name()]
	PrintKeyValue(out, "Runs", fmt.Sprint(stats.TotalRuns), 8)
	PrintKeyValue(out, "Failures", fmt.Sprint(stats.FailureCount), 8)
	return nil
}

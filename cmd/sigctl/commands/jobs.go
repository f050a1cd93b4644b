package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/sigapi/internal/jobs"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "추출 작업 결과 조회",
	Long: `추출 작업(job), 실행(run), 결과물(output)을 조회하고 내려받습니다.

Job은 id 또는 이름으로, output은 id, sha, 이름으로 지정할 수 있습니다.
Run을 생략하면 최신 실행(latest)을 사용합니다.

Example:
  go run ./cmd/sigctl jobs ls
  go run ./cmd/sigctl jobs runs daily_prices
  go run ./cmd/sigctl jobs outputs daily_prices
  go run ./cmd/sigctl jobs get daily_prices prices -o prices.json`,
}

var (
	jobsLsCmd = &cobra.Command{
		Use:   "ls",
		Short: "작업 목록",
		Args:  cobra.NoArgs,
		RunE:  runJobsLs,
	}

	jobsRunsCmd = &cobra.Command{
		Use:   "runs [job]",
		Short: "작업의 실행 목록",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsRuns,
	}

	jobsOutputsCmd = &cobra.Command{
		Use:   "outputs [job] [run]",
		Short: "실행 결과물 목록",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runJobsOutputs,
	}

	jobsGetCmd = &cobra.Command{
		Use:   "get [job] [output]",
		Short: "결과물 내려받기",
		Args:  cobra.ExactArgs(2),
		RunE:  runJobsGet,
	}
)

var (
	// Jobs flags
	jobsRun    string
	outputFile string
	decodeJSON bool
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsLsCmd)
	jobsCmd.AddCommand(jobsRunsCmd)
	jobsCmd.AddCommand(jobsOutputsCmd)
	jobsCmd.AddCommand(jobsGetCmd)

	jobsGetCmd.Flags().StringVar(&jobsRun, "run", "", "run id (default latest)")
	jobsGetCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write content to file instead of stdout")
	jobsGetCmd.Flags().BoolVar(&decodeJSON, "json", false, "decode gzip+json content and pretty-print it")
}

func newJobsClient() (*jobs.Client, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return jobs.New(cfg, log)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	client, err := newJobsClient()
	if err != nil {
		return err
	}
	list, err := client.Jobs(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(list))
	for _, j := range list {
		rows = append(rows, []string{string(j.ID), j.Name, formatTime(j.CreatedAt())})
	}
	PrintTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CREATED"}, rows)
	return nil
}

func runJobsRuns(cmd *cobra.Command, args []string) error {
	client, err := newJobsClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	job, err := client.Job(ctx, args[0])
	if err != nil {
		return err
	}
	runs, err := client.Runs(ctx, string(job.ID))
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{string(r.ID), formatTime(r.CreatedAt())})
	}
	PrintTable(cmd.OutOrStdout(), []string{"RUN", "CREATED"}, rows)
	return nil
}

// resolveRun returns the job and the given run, or its latest run
func resolveRun(cmd *cobra.Command, client *jobs.Client, jobKey, runID string) (*jobs.Job, *jobs.Run, error) {
	ctx := cmd.Context()
	job, err := client.Job(ctx, jobKey)
	if err != nil {
		return nil, nil, err
	}

	var run *jobs.Run
	if runID == "" {
		run, err = client.LatestRun(ctx, string(job.ID))
	} else {
		run, err = client.Run(ctx, string(job.ID), runID)
	}
	if err != nil {
		return nil, nil, err
	}
	return job, run, nil
}

func runJobsOutputs(cmd *cobra.Command, args []string) error {
	client, err := newJobsClient()
	if err != nil {
		return err
	}
	runID := ""
	if len(args) == 2 {
		runID = args[1]
	}

	job, run, err := resolveRun(cmd, client, args[0], runID)
	if err != nil {
		return err
	}
	outputs, err := client.Outputs(cmd.Context(), string(job.ID), string(run.ID))
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(outputs))
	for _, o := range outputs {
		rows = append(rows, []string{o.ID, o.Name, o.SHA, formatTime(o.CreatedAt())})
	}
	PrintTable(cmd.OutOrStdout(), []string{"ID", "NAME", "SHA", "CREATED"}, rows)
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	client, err := newJobsClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	job, run, err := resolveRun(cmd, client, args[0], jobsRun)
	if err != nil {
		return err
	}
	output, err := client.Output(ctx, string(job.ID), string(run.ID), args[1])
	if err != nil {
		return err
	}
	content, err := client.Content(ctx, string(job.ID), string(run.ID), output.ID)
	if err != nil {
		return err
	}

	if decodeJSON {
		var v interface{}
		if err := jobs.DecodeJSON(*output, content, &v); err != nil {
			return err
		}
		if content, err = json.MarshalIndent(v, "", "  "); err != nil {
			return err
		}
		content = append(content, '\n')
	}

	if outputFile == "" {
		_, err := cmd.OutOrStdout().Write(content)
		return err
	}
	if err := os.WriteFile(outputFile, content, 0o644); err != nil {
		return err
	}
	PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Wrote %d bytes of %s to %s", len(content), output.ID, outputFile))
	return nil
}

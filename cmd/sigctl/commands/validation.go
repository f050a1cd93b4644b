package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/internal/scheduler"
	schedjobs "github.com/wonny/sigapi/internal/scheduler/jobs"
	"github.com/wonny/sigapi/internal/validation"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

// validationCmd represents the validation command
var validationCmd = &cobra.Command{
	Use:   "validation",
	Short: "데이터 검증 프로젝트",
	Long: `검증 프로젝트에 파일을 올리고 규칙(rule)으로 검증합니다.

규칙 파일(YAML):
  rules:
    - type: NoNullRule
      properties: {columns: [close]}
    - type: AbsoluteChangeRule
      properties: {columns: [close], threshold: 50}

Example:
  go run ./cmd/sigctl validation rules
  go run ./cmd/sigctl validation run prices prices.csv --rules rules.yaml
  go run ./cmd/sigctl validation run prices prices.csv --schedule '0 0 6 * * *'
  go run ./cmd/sigctl validation rm prices`,
}

var (
	validationRulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "사용 가능한 규칙 메타데이터",
		Args:  cobra.NoArgs,
		RunE:  runValidationRules,
	}

	validationRunCmd = &cobra.Command{
		Use:   "run [project] [file]",
		Short: "파일 업로드 후 검증 실행",
		Args:  cobra.ExactArgs(2),
		RunE:  runValidationRun,
	}

	validationRmCmd = &cobra.Command{
		Use:   "rm [project]",
		Short: "프로젝트 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidationRm,
	}
)

var (
	// Validation flags
	rulesFile          string
	validationTimeout  time.Duration
	validationSchedule string
)

func init() {
	rootCmd.AddCommand(validationCmd)
	validationCmd.AddCommand(validationRulesCmd)
	validationCmd.AddCommand(validationRunCmd)
	validationCmd.AddCommand(validationRmCmd)

	validationRunCmd.Flags().StringVar(&rulesFile, "rules", "", "rules YAML to apply before validating")
	validationRunCmd.Flags().DurationVar(&validationTimeout, "timeout", validation.DefaultValidateTimeout, "maximum wait for the execution")
	validationRunCmd.Flags().StringVar(&validationSchedule, "schedule", "", "re-run on a cron schedule (with seconds)")
}

func newValidationService() (*validation.Service, *logger.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	root, err := newResourceClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	// presigned uploads carry no API credentials
	upload := httputil.NewWithTimeout(cfg, log, 5*time.Minute)
	return validation.New(root, upload, log), log, nil
}

func runValidationRules(cmd *cobra.Command, args []string) error {
	svc, _, err := newValidationService()
	if err != nil {
		return err
	}
	env, err := svc.Rules(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%#v\n", env)
	return nil
}

func printExecution(cmd *cobra.Command, exec *resource.Envelope) {
	out := cmd.OutOrStdout()
	PrintHeader(out, "Validation "+exec.String("execution_id"))
	PrintKeyValue(out, "Status", exec.Status(), 8)
	if issues, ok := exec.Field("issues"); ok {
		if list, ok := issues.([]interface{}); ok {
			PrintKeyValue(out, "Issues", fmt.Sprint(len(list)), 8)
		}
	}
	PrintSeparator(out)
}

func runValidationRun(cmd *cobra.Command, args []string) error {
	svc, log, err := newValidationService()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	project, err := svc.GetOrCreateProject(ctx, args[0])
	if err != nil {
		return err
	}

	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return err
		}
		rules, transforms, err := validation.ParseRules(data)
		if err != nil {
			return err
		}
		if _, err := project.UpdateConfig(ctx, rules, transforms); err != nil {
			return err
		}
		PrintSuccess(out, fmt.Sprintf("Config updated (%d rules)", len(rules)))
	}

	job := schedjobs.NewValidationJob(project, project.Name, args[1], validationSchedule, validationTimeout, log)
	job.OnResult = func(exec *resource.Envelope) { printExecution(cmd, exec) }

	if validationSchedule == "" {
		return job.Run(ctx)
	}

	sched := scheduler.New(log, scheduler.WithRetry(1, time.Minute))
	if err := sched.AddJob(job); err != nil {
		return err
	}
	sched.Start()
	PrintSuccess(out, fmt.Sprintf("Validating %s on %s", args[1], validationSchedule))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-ctx.Done()
	sched.Stop()
	return nil
}

func runValidationRm(cmd *cobra.Command, args []string) error {
	svc, _, err := newValidationService()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	project, err := svc.FindProject(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := project.Delete(ctx); err != nil {
		return err
	}
	PrintSuccess(cmd.OutOrStdout(), "Deleted project "+args[0])
	return nil
}

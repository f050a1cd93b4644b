package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/sigapi/internal/datasets"
	"github.com/wonny/sigapi/internal/framework"
	"github.com/wonny/sigapi/pkg/config"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "API 연결 상태 확인",
	Long: `프레임워크 API와 데이터 플랫폼의 연결 상태를 확인합니다.

확인 항목:
- Framework API: /status 헬스 체크
- Platform: 토큰이 설정된 경우 데이터셋 목록 조회

Example:
  go run ./cmd/sigctl status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	PrintHeader(out, "sigctl status")
	PrintKeyValue(out, "Environment", cfg.Env, 12)
	PrintKeyValue(out, "API", cfg.API.BaseURL, 12)
	PrintKeyValue(out, "Version", cfg.API.Version, 12)
	PrintSeparator(out)

	failed := false

	client, err := newResourceClient(cfg, log)
	if err == nil {
		_, err = framework.NewSession(ctx, client, framework.WithLogger(log))
	}
	if err != nil {
		PrintError(out, fmt.Sprintf("Framework API: %v", err))
		failed = true
	} else {
		PrintSuccess(out, "Framework API is healthy")
	}

	ds, err := datasets.New(cfg, log)
	switch {
	case errors.Is(err, config.ErrMissingPlatformToken):
		PrintInfo(out, "Platform: no token configured, skipped")
	case err != nil:
		PrintError(out, fmt.Sprintf("Platform: %v", err))
		failed = true
	default:
		list, err := ds.List(ctx)
		if err != nil {
			PrintError(out, fmt.Sprintf("Platform: %v", err))
			failed = true
		} else {
			PrintSuccess(out, fmt.Sprintf("Platform reachable (%d datasets)", len(list)))
		}
	}

	if failed {
		return fmt.Errorf("status check failed")
	}
	return nil
}

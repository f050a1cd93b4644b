package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/logger"
)

// ProjectValidator is the part of a validation project a check run needs
type ProjectValidator interface {
	UploadFile(ctx context.Context, path string) (*resource.Envelope, error)
	Validate(ctx context.Context, timeout time.Duration) (*resource.Envelope, error)
}

// ValidationJob uploads a file to a validation project and runs its rules
type ValidationJob struct {
	project  ProjectValidator
	name     string
	file     string
	schedule string
	timeout  time.Duration
	logger   *logger.Logger

	// OnResult receives every finished execution
	OnResult func(*resource.Envelope)
}

// NewValidationJob creates a validation job for one project file
func NewValidationJob(p ProjectValidator, name, file, schedule string, timeout time.Duration, log *logger.Logger) *ValidationJob {
	return &ValidationJob{
		project:  p,
		name:     name,
		file:     file,
		schedule: schedule,
		timeout:  timeout,
		logger:   log,
	}
}

// Name returns the job name
func (j *ValidationJob) Name() string {
	return "validation:" + j.name
}

// Schedule returns the cron schedule
func (j *ValidationJob) Schedule() string {
	return j.schedule
}

// Run uploads the file and waits for the execution
func (j *ValidationJob) Run(ctx context.Context) error {
	if _, err := j.project.UploadFile(ctx, j.file); err != nil {
		return fmt.Errorf("upload %s: %w", j.file, err)
	}

	exec, err := j.project.Validate(ctx, j.timeout)
	if err != nil {
		return fmt.Errorf("validate %s: %w", j.name, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"project":      j.name,
		"execution_id": exec.String("execution_id"),
		"status":       exec.Status(),
	}).Info("Validation finished")

	if j.OnResult != nil {
		j.OnResult(exec)
	}
	return nil
}

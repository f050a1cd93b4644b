package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wonny/sigapi/internal/datasets"
	"github.com/wonny/sigapi/pkg/logger"
)

// Uploader is the part of the dataset client a sync needs
type Uploader interface {
	Upload(ctx context.Context, file, datasetID string, opts datasets.UploadOptions) (*datasets.UploadResult, error)
}

// DatasetSyncJob re-uploads a local CSV into a dataset whenever the file changes
// ⭐ SSOT: 주기적 데이터셋 동기화는 이 Job에서만
type DatasetSyncJob struct {
	uploader  Uploader
	file      string
	datasetID string
	schedule  string
	opts      datasets.UploadOptions
	logger    *logger.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
}

// NewDatasetSyncJob creates a sync job. opts.Mode decides append or overwrite.
func NewDatasetSyncJob(up Uploader, file, datasetID, schedule string, opts datasets.UploadOptions, log *logger.Logger) *DatasetSyncJob {
	return &DatasetSyncJob{
		uploader:  up,
		file:      file,
		datasetID: datasetID,
		schedule:  schedule,
		opts:      opts,
		logger:    log,
	}
}

// Name returns the job name
func (j *DatasetSyncJob) Name() string {
	return "dataset_sync:" + j.datasetID
}

// Schedule returns the cron schedule
func (j *DatasetSyncJob) Schedule() string {
	return j.schedule
}

// Run uploads the file unless it is unchanged since the last successful upload
func (j *DatasetSyncJob) Run(ctx context.Context) error {
	info, err := os.Stat(j.file)
	if err != nil {
		return fmt.Errorf("stat %s: %w", j.file, err)
	}

	j.mu.Lock()
	unchanged := info.ModTime().Equal(j.modTime) && info.Size() == j.size
	j.mu.Unlock()
	if unchanged {
		j.logger.WithField("file", j.file).Debug("File unchanged, skipping sync")
		return nil
	}

	result, err := j.uploader.Upload(ctx, j.file, j.datasetID, j.opts)
	if err != nil {
		return fmt.Errorf("sync %s: %w", j.datasetID, err)
	}

	j.mu.Lock()
	j.modTime = info.ModTime()
	j.size = info.Size()
	j.mu.Unlock()

	j.logger.WithFields(map[string]interface{}{
		"dataset":  j.datasetID,
		"parts":    result.Parts,
		"duration": result.Duration,
	}).Info("Dataset synced")
	return nil
}

package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sigapi/internal/datasets"
	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/logger"
)

type fakeUploader struct {
	calls []string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, file, datasetID string, opts datasets.UploadOptions) (*datasets.UploadResult, error) {
	f.calls = append(f.calls, datasetID+":"+opts.Mode)
	if f.err != nil {
		return nil, f.err
	}
	return &datasets.UploadResult{DatasetID: datasetID, Parts: []string{"part-1"}}, nil
}

func TestDatasetSyncSkipsUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	up := &fakeUploader{}
	job := NewDatasetSyncJob(up, path, "prices", "@hourly", datasets.UploadOptions{Mode: datasets.ModeOverwrite}, logger.Nop())
	assert.Equal(t, "dataset_sync:prices", job.Name())
	assert.Equal(t, "@hourly", job.Schedule())

	ctx := context.Background()
	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))
	assert.Len(t, up.calls, 1)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n3,4\n"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, []string{"prices:overwrite", "prices:overwrite"}, up.calls)
}

func TestDatasetSyncRetriesAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	up := &fakeUploader{err: errors.New("503")}
	job := NewDatasetSyncJob(up, path, "prices", "@hourly", datasets.UploadOptions{Mode: datasets.ModeAppend}, logger.Nop())

	assert.Error(t, job.Run(context.Background()))
	up.err = nil
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, up.calls, 2)

	missing := NewDatasetSyncJob(up, filepath.Join(t.TempDir(), "gone.csv"), "x", "@hourly", datasets.UploadOptions{}, logger.Nop())
	assert.Error(t, missing.Run(context.Background()))
}

type fakeProject struct {
	uploads  int
	validate error
}

func (p *fakeProject) UploadFile(ctx context.Context, path string) (*resource.Envelope, error) {
	p.uploads++
	return resource.NewEnvelope(map[string]interface{}{"fileName": path}, "File", nil, nil), nil
}

func (p *fakeProject) Validate(ctx context.Context, timeout time.Duration) (*resource.Envelope, error) {
	if p.validate != nil {
		return nil, p.validate
	}
	return resource.NewEnvelope(map[string]interface{}{"executionId": "e-1", "status": "COMPLETED"}, "Execution", nil, nil), nil
}

func TestValidationJob(t *testing.T) {
	p := &fakeProject{}
	job := NewValidationJob(p, "prices", "prices.csv", "0 0 6 * * *", time.Minute, logger.Nop())

	var got string
	job.OnResult = func(env *resource.Envelope) { got = env.String("execution_id") }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "e-1", got)
	assert.Equal(t, 1, p.uploads)
	assert.Equal(t, "validation:prices", job.Name())

	p.validate = errors.New("timed out")
	assert.Error(t, job.Run(context.Background()))
}

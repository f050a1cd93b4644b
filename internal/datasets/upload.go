package datasets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Upload modes
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// DefaultMaxPartSize is the part size limit when none is configured
const DefaultMaxPartSize = 3_800_000

// UploadOptions controls one upload. Zero values use the client configuration.
type UploadOptions struct {
	Mode        string // "" ⇒ append
	MaxPartSize int
	Workers     int

	// Progress is called after each uploaded part (never concurrently)
	Progress func(done, total int)
}

// UploadResult summarizes a finished upload
type UploadResult struct {
	DatasetID string
	Parts     []string
	Files     int // files in the dataset after the upload
	Duration  time.Duration
}

// Upload sends a CSV file to a dataset, creating the dataset when it does not exist.
// The file is split into parts that each carry the header row.
func (c *Client) Upload(ctx context.Context, file, datasetID string, opts UploadOptions) (*UploadResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if opts.MaxPartSize <= 0 {
		opts.MaxPartSize = c.maxPart
	}
	if opts.MaxPartSize <= 0 {
		opts.MaxPartSize = DefaultMaxPartSize
	}
	if opts.Workers <= 0 {
		opts.Workers = c.workers
	}

	if opts.Mode != ModeAppend && opts.Mode != ModeOverwrite {
		return nil, fmt.Errorf("mode must be %q or %q, got %q", ModeOverwrite, ModeAppend, opts.Mode)
	}
	if !strings.EqualFold(filepath.Ext(file), ".csv") {
		return nil, fmt.Errorf("only csv files are supported: %s", file)
	}
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("no file at path %s: %w", file, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is not a file", file)
	}

	log := c.logger.WithFields(map[string]interface{}{
		"file":       file,
		"dataset_id": datasetID,
		"mode":       opts.Mode,
	})
	log.WithField("size_bytes", info.Size()).Info("Start upload")

	schema, err := ReadSchema(file)
	if err != nil {
		return nil, err
	}

	dataset, err := c.Get(ctx, datasetID)
	if errors.Is(err, ErrDatasetNotFound) {
		dataset, err = c.Create(ctx, datasetID, schema)
	}
	if err != nil {
		return nil, err
	}
	datasetID = dataset.ID

	if err := CheckSchema(dataset.Schema, schema); err != nil {
		return nil, err
	}

	existing, err := c.Files(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	log.WithField("files", len(existing)).Info("Existing files in dataset")

	if opts.Mode == ModeOverwrite && len(existing) > 0 {
		log.Info("Deleting all existing files in dataset")
		if err := c.DeleteAllFiles(ctx, datasetID); err != nil {
			return nil, fmt.Errorf("failed to clear dataset %s: %w", datasetID, err)
		}
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	parts, err := SplitCSV(f, opts.MaxPartSize)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	log.WithField("parts", len(parts)).Info("Split CSV into parts")

	columnTypes := make(map[string]string, len(schema))
	for _, col := range schema {
		columnTypes[col.Name] = col.Type
	}

	start := time.Now()
	now := start.UTC()
	names := make([]string, len(parts))
	for i := range parts {
		names[i] = PartName(now, file, i+1)
	}

	progress := make(chan struct{}, len(parts))
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		done := 0
		for range progress {
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(parts))
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range parts {
		i := i
		g.Go(func() error {
			key, err := c.uploadPart(gctx, datasetID, names[i], parts[i], columnTypes)
			if err != nil {
				c.logger.WithError(err).WithField("part", names[i]).Error("Part upload failed")
				return fmt.Errorf("part %s: %w", names[i], err)
			}
			c.logger.WithFields(map[string]interface{}{
				"part":       names[i],
				"key":        key,
				"size_bytes": len(parts[i]),
			}).Debug("Part uploaded")
			progress <- struct{}{}
			return nil
		})
	}
	err = g.Wait()
	close(progress)
	<-reported
	if err != nil {
		return nil, err
	}

	files, err := c.Files(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		DatasetID: datasetID,
		Parts:     names,
		Files:     len(files),
		Duration:  time.Since(start),
	}
	log.WithFields(map[string]interface{}{
		"parts":    len(names),
		"files":    result.Files,
		"duration": result.Duration,
	}).Info("Upload complete")
	return result, nil
}

// uploadPart posts one base64 encoded part and returns its raw file key
func (c *Client) uploadPart(ctx context.Context, datasetID, name string, part []byte, columnTypes map[string]string) (string, error) {
	resp, err := c.parts.PostJSON(ctx, c.filesURL(datasetID), map[string]interface{}{
		"file_id":       name,
		"file":          base64.StdEncoding.EncodeToString(part),
		"file_format":   "csv",
		"upload_format": "base64",
		"tags":          map[string]string{"name": name},
		"convert_options": map[string]interface{}{
			"column_types": columnTypes,
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// 200 if the part already exists (still overwritten)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", responseError(resp)
	}

	var body struct {
		RawFileKey string `json:"raw_file_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode part response: %w", err)
	}
	return body.RawFileKey, nil
}

// ReadSchema returns the CSV header as string columns
func ReadSchema(file string) ([]Column, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty CSV file", file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", file, err)
	}

	schema := make([]Column, len(header))
	for i, name := range header {
		schema[i] = Column{Name: name, Type: "string"}
	}
	return schema, nil
}

// CheckSchema fails when the new schema has columns the existing dataset lacks
func CheckSchema(existing, incoming []Column) error {
	known := make(map[string]bool, len(existing))
	for _, col := range existing {
		known[col.Name] = true
	}

	var extra []string
	for _, col := range incoming {
		if !known[col.Name] {
			extra = append(extra, col.Name)
		}
	}
	if len(extra) > 0 {
		names := make([]string, len(existing))
		for i, col := range existing {
			names[i] = col.Name
		}
		return fmt.Errorf("new dataset schema has extra columns %v versus the existing dataset schema %v", extra, names)
	}
	return nil
}

// SplitCSV splits CSV content into parts of at most maxPartSize bytes, each starting with the header line
func SplitCSV(r io.Reader, maxPartSize int) ([][]byte, error) {
	if maxPartSize < 1 {
		return nil, fmt.Errorf("max part size must be >= 1")
	}

	br := bufio.NewReader(r)
	header, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}
	if !bytes.HasSuffix(header, []byte("\n")) {
		return nil, fmt.Errorf("CSV file does not start with a header")
	}

	var parts [][]byte
	var part bytes.Buffer
	part.Write(header)

	for row := 1; ; row++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if len(line)+len(header) > maxPartSize {
				return nil, fmt.Errorf("row %d does not fit within max part size %d", row, maxPartSize)
			}
			if part.Len()+len(line) > maxPartSize {
				parts = append(parts, append([]byte(nil), part.Bytes()...))
				part.Reset()
				part.Write(header)
			}
			part.Write(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if part.Len() > len(header) {
		parts = append(parts, append([]byte(nil), part.Bytes()...))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}
	return parts, nil
}

// PartName names part i of file: 20240102T150405Z.<safe file name>.part-000000001
func PartName(ts time.Time, file string, i int) string {
	return fmt.Sprintf("%s.%s.part-%09d", ts.UTC().Format("20060102T150405Z"), SafeName(filepath.Base(file)), i)
}

const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-."

// SafeName replaces unsafe characters with '_' and trims leading and trailing "_-."
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(safeChars, r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_-.")
}

// IsValidDatasetID reports whether id is already a safe name
func IsValidDatasetID(id string) bool {
	return id != "" && SafeName(id) == id
}

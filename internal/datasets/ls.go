package datasets

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidSpecifier is returned for identifiers outside the ls/rm grammar
var ErrInvalidSpecifier = errors.New("invalid specifier: use `dataset`, `data*`, `dataset/` or `dataset/pattern*`")

// splitIdentifier parses "dataset/pattern" into its parts
func splitIdentifier(identifier string) (dataset, pattern string, hasSlash bool, err error) {
	dataset, pattern, hasSlash = strings.Cut(identifier, "/")
	if hasSlash && strings.Contains(dataset, "*") {
		return "", "", false, ErrInvalidSpecifier
	}
	return dataset, pattern, hasSlash, nil
}

// Ls lists identifiers:
//
//	""                 every dataset id
//	"dataset"          every file of the dataset, as dataset/file
//	"data*"            dataset ids matching the pattern
//	"dataset/"         every file of the dataset
//	"dataset/pattern*" files of the dataset matching the pattern
func (c *Client) Ls(ctx context.Context, identifier string) ([]string, error) {
	if identifier == "" {
		c.logger.Info("Listing all datasets")
		return c.datasetIDs(ctx, "*")
	}

	dataset, pattern, hasSlash, err := splitIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	if !hasSlash && strings.Contains(identifier, "*") {
		c.logger.WithField("pattern", identifier).Info("Listing datasets matching pattern")
		return c.datasetIDs(ctx, identifier)
	}

	c.logger.WithFields(map[string]interface{}{
		"dataset_id": dataset,
		"pattern":    pattern,
	}).Info("Listing files in dataset")

	files, err := c.FilterFiles(ctx, dataset, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = dataset + "/" + f
	}
	return out, nil
}

// Rm removes a dataset ("dataset") or files ("dataset/", "dataset/pattern*").
// Dataset patterns ("data*") are refused.
func (c *Client) Rm(ctx context.Context, identifier string, dryRun bool) error {
	dataset, pattern, hasSlash, err := splitIdentifier(identifier)
	if err != nil {
		return err
	}

	if !hasSlash {
		if dataset == "" || strings.Contains(dataset, "*") {
			return ErrInvalidSpecifier
		}
		c.logger.WithField("dataset_id", dataset).Info("Removing dataset")
		return c.DeleteDataset(ctx, dataset, dryRun)
	}

	c.logger.WithFields(map[string]interface{}{
		"dataset_id": dataset,
		"pattern":    pattern,
	}).Info("Removing files from dataset")

	files, err := c.FilterFiles(ctx, dataset, pattern)
	if err != nil {
		return err
	}
	return c.DeleteFiles(ctx, dataset, files, dryRun)
}

func (c *Client) datasetIDs(ctx context.Context, pattern string) ([]string, error) {
	datasets, err := c.Filter(ctx, pattern)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.ID
	}
	return ids, nil
}

package grimoire

import (
	"fmt"
	"os"
)

// ErrorPolicy controls how AddBatch reacts to a failing item.
type ErrorPolicy int

const (
	// PolicyFail stops at the first failure and returns its error.
	PolicyFail ErrorPolicy = iota

	// PolicySkip records the failure and continues with the next item.
	PolicySkip

	// PolicyAbort records the failure and stops, returning the partial
	// result without an error. The result's Aborted flag is set.
	PolicyAbort
)

// FileItem is one unit of work for AddBatch. Exactly one of Data and
// LocalPath should be set; when both are set, Data wins. Compression is
// only consulted by ArchiveBuilder.
type FileItem struct {
	VFSPath     string
	LocalPath   string
	Data        []byte
	Compression uint8
}

// BatchFailure records one item that could not be added.
type BatchFailure struct {
	Path string
	Err  error
}

// BatchResult summarizes an AddBatch run.
type BatchResult struct {
	Added    int
	Failures []BatchFailure
	Aborted  bool
}

// ProgressEvent reports batch progress after each item, successful or
// not. Index is zero-based.
type ProgressEvent struct {
	Index int
	Total int
	Path  string
}

// ProgressFunc receives progress events. A nil ProgressFunc disables
// reporting.
type ProgressFunc func(ProgressEvent)

// AddBatch adds many items under an error policy, reporting progress
// after each one.
func (b *ManifestBuilder) AddBatch(items []FileItem, policy ErrorPolicy, progress ProgressFunc) (BatchResult, error) {
	return runBatch(items, policy, progress, func(item FileItem) error {
		data, err := loadItem(item)
		if err != nil {
			return err
		}
		return b.Add(item.VFSPath, data)
	})
}

// AddBatch adds many items under an error policy, reporting progress
// after each one. Each item's Compression field selects its compression
// hook.
func (b *ArchiveBuilder) AddBatch(items []FileItem, policy ErrorPolicy, progress ProgressFunc) (BatchResult, error) {
	return runBatch(items, policy, progress, func(item FileItem) error {
		data, err := loadItem(item)
		if err != nil {
			return err
		}
		return b.Add(item.VFSPath, data, item.Compression)
	})
}

func loadItem(item FileItem) ([]byte, error) {
	if item.Data != nil {
		return item.Data, nil
	}
	if item.LocalPath == "" {
		return nil, fmt.Errorf("grimoire: batch item %s has neither data nor local path", item.VFSPath)
	}
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("grimoire: read %s: %w", item.LocalPath, err)
	}
	return data, nil
}

func runBatch(items []FileItem, policy ErrorPolicy, progress ProgressFunc, add func(FileItem) error) (BatchResult, error) {
	var result BatchResult
	for i, item := range items {
		err := add(item)
		if progress != nil {
			progress(ProgressEvent{Index: i, Total: len(items), Path: item.VFSPath})
		}
		if err == nil {
			result.Added++
			continue
		}
		switch policy {
		case PolicySkip:
			result.Failures = append(result.Failures, BatchFailure{Path: item.VFSPath, Err: err})
		case PolicyAbort:
			result.Failures = append(result.Failures, BatchFailure{Path: item.VFSPath, Err: err})
			result.Aborted = true
			return result, nil
		default:
			return result, err
		}
	}
	return result, nil
}

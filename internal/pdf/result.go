package pdf

import (
	"sync"
)

// OperationType はジョブ種別を表します。
type OperationType string

const (
	OperationMerge OperationType = "merge"
)

// Result は結合処理の成果を表します。
type Result struct {
	JobID          string        `json:"jobId"`
	Operation      OperationType `json:"operation"`
	OutputPath     string        `json:"outputPath"`
	OutputFilename string        `json:"outputFilename"`
	OutputSize     int64         `json:"outputSize"`
	Meta           *MergeMeta    `json:"meta,omitempty"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}

// SourceFileMeta は入力文書1件の概要です。
type SourceFileMeta struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Pages     int    `json:"pages"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Ranges    string `json:"ranges,omitempty"`
}

// MergeMeta は結合処理のメタデータです。
type MergeMeta struct {
	TotalPages     int              `json:"totalPages"`
	SkippedSources []string         `json:"skippedSources,omitempty"`
	Sources        []SourceFileMeta `json:"sources"`
}

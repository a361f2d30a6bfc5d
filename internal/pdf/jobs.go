package pdf

import (
	"context"
	"fmt"

	"github.com/yourusername/page-binder/internal/merge"
)

// RunJob はジョブIDに対応する結合を実行します。
// 実行に失敗した場合、ワークスペースは破棄されます。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter merge.ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws.dir)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}
	if manifest.Operation != OperationMerge {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("unsupported operation: %s", manifest.Operation)
	}

	stored, ranges := storedFilesFromManifest(ws.dir, manifest)
	if len(stored) == 0 {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("manifest has no input files")
	}

	state := &mergeState{ws: ws, storedFiles: stored, ranges: ranges, options: manifest.Options}
	result, runErr := s.executeMerge(ctx, state, reporter)
	if runErr != nil {
		if cleanupErr := removeDir(ws.dir); cleanupErr != nil {
			runErr = fmt.Errorf("%w (ワークスペースの削除にも失敗しました: %v)", runErr, cleanupErr)
		}
		return nil, runErr
	}

	return result, nil
}

// DiscardJob は実行前のジョブを破棄します。
func (s *Service) DiscardJob(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return removeDir(s.workspaceFor(jobID).dir)
}

package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/page-binder/internal/merge"
)

const outputFilename = "merged.pdf"

// MergeMultipart はアップロードされた複数PDFを同期的に結合します。
// ranges は files と同じ長さのページ指定列（空文字は全ページ）か、空でも構いません。
func (s *Service) MergeMultipart(ctx context.Context, files []*multipart.FileHeader, ranges []string, options MergeOptions) (_ *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(files) == 0 {
		return nil, merge.NewError(merge.CodeInvalidInput, "結合するPDFファイルを選択してください。", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, _, err := s.prepareMerge(ctx, files, ranges, options)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(state.ws.dir)
		}
	}()

	result, execErr := s.executeMerge(ctx, state, nil)
	if execErr != nil {
		return nil, execErr
	}
	return result, nil
}

// PrepareMergeJob は非同期ジョブ用に入力を保存します。
func (s *Service) PrepareMergeJob(ctx context.Context, files []*multipart.FileHeader, ranges []string, options MergeOptions) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, manifest, err := s.prepareMerge(ctx, files, ranges, options)
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

type mergeState struct {
	ws          workspace
	storedFiles []storedFile
	ranges      []string
	options     MergeOptions
}

func (s *Service) prepareMerge(ctx context.Context, files []*multipart.FileHeader, ranges []string, options MergeOptions) (*mergeState, *JobManifest, error) {
	if len(ranges) != 0 && len(ranges) != len(files) {
		return nil, nil, merge.NewError(merge.CodeInvalidInput,
			"ページ指定の数がファイル数と一致していません。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, nil, err
	}

	stored := make([]storedFile, 0, len(files))
	for i, file := range files {
		sf, err := s.storeMultipartFile(ctx, file, ws.inDir, i)
		if err != nil {
			_ = removeDir(ws.dir)
			return nil, nil, err
		}

		// ページ指定はこの時点で検証し、壊れた指定を計画へ持ち込まない。
		if i < len(ranges) && ranges[i] != "" {
			if _, err := merge.ParsePageRange(ranges[i], sf.pages); err != nil {
				_ = removeDir(ws.dir)
				return nil, nil, err
			}
		}
		stored = append(stored, sf)
	}

	manifest := &JobManifest{
		JobID:     ws.jobID,
		Operation: OperationMerge,
		Files:     toJobFiles(stored, ranges),
		Options:   options,
		CreatedAt: s.now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}

	return &mergeState{ws: ws, storedFiles: stored, ranges: ranges, options: options}, manifest, nil
}

func (s *Service) executeMerge(ctx context.Context, state *mergeState, progress merge.ProgressReporter) (*Result, error) {
	ws := state.ws

	plan := merge.NewPlan()
	for i, sf := range state.storedFiles {
		handle, err := merge.OpenDocument(s.codec, sf.path)
		if err != nil {
			return nil, err
		}
		if err := plan.Add(handle); err != nil {
			return nil, err
		}
		if i < len(state.ranges) && state.ranges[i] != "" {
			pages, err := merge.ParsePageRange(state.ranges[i], handle.PageCount())
			if err != nil {
				return nil, err
			}
			if err := plan.SetSelection(plan.Len()-1, pages); err != nil {
				return nil, err
			}
		}
	}

	executor := merge.NewExecutor(s.codec, s.logger)
	outputPath := filepath.Join(ws.outDir, outputFilename)
	mergeResult, err := executor.Run(ctx, plan, outputPath, merge.Options{
		PreserveBookmarks: state.options.PreserveBookmarks,
		PreserveMetadata:  state.options.PreserveMetadata,
	}, progress)
	if err != nil {
		return nil, err
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("出力ファイルの確認に失敗しました: %w", err)
	}

	sources := make([]SourceFileMeta, len(state.storedFiles))
	for i, sf := range state.storedFiles {
		sources[i] = SourceFileMeta{
			Name:      sf.originalName,
			Size:      sf.size,
			Pages:     sf.pages,
			Encrypted: sf.encrypted,
		}
		if i < len(state.ranges) {
			sources[i].Ranges = state.ranges[i]
		}
	}

	meta := struct {
		Type           OperationType    `json:"type"`
		CreatedAt      string           `json:"createdAt"`
		Sources        []SourceFileMeta `json:"sources"`
		Output         string           `json:"output"`
		Pages          int              `json:"pages"`
		SkippedSources []string         `json:"skippedSources,omitempty"`
	}{
		Type:           OperationMerge,
		CreatedAt:      s.now().UTC().Format(time.RFC3339),
		Sources:        sources,
		Output:         outputFilename,
		Pages:          mergeResult.WrittenPages,
		SkippedSources: mergeResult.SkippedSources,
	}
	if err := writeJSON(filepath.Join(ws.dir, "meta.json"), meta); err != nil {
		return nil, fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}

	s.scheduleCleanup(ws.dir)

	return &Result{
		JobID:          ws.jobID,
		Operation:      OperationMerge,
		OutputPath:     outputPath,
		OutputFilename: outputFilename,
		OutputSize:     outInfo.Size(),
		Meta: &MergeMeta{
			TotalPages:     mergeResult.WrittenPages,
			SkippedSources: mergeResult.SkippedSources,
			Sources:        sources,
		},
		jobDir: ws.dir,
	}, nil
}

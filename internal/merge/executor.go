// Package merge はページ単位の文書結合エンジンを提供します。
// 結合計画（Plan）の組み立て、ページ指定の解析、結合の実行と進捗報告を担い、
// 文書フォーマット自体の読み書きは Codec に委譲します。
package merge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// toolName は合成メタデータに使用する生成元の名称です。
const toolName = "Page Binder"

// appendBatchSize はページ追加1回あたりの最大ページ数です。
// バッチ境界ごとに進捗報告とキャンセル確認を行います。
const appendBatchSize = 16

// Options は結合実行時のオプションです。
type Options struct {
	PreserveBookmarks bool
	PreserveMetadata  bool

	// MetadataOverride が非nilの場合、合成メタデータの代わりにこの値を使います。
	MetadataOverride *Metadata
}

// MergeResult は結合成功時の結果です。失敗は *Error として返されます。
type MergeResult struct {
	OutputPath   string
	WrittenPages int

	// SkippedSources は復号できずページを提供しなかった入力文書の名前です。
	SkippedSources []string
}

// Executor は Plan を1つの出力文書へ結合します。
// Run の1回の呼び出しは単一ゴルーチンで完結し、内部に共有状態を持たないため、
// 異なる出力先に対しては複数の Executor を並行に実行できます。
type Executor struct {
	codec  Codec
	logger *log.Logger
	now    func() time.Time
}

// NewExecutor は Executor を作成します。logger は nil でも構いません。
func NewExecutor(codec Codec, logger *log.Logger) *Executor {
	return &Executor{
		codec:  codec,
		logger: logger,
		now:    time.Now,
	}
}

// Run は plan の項目順にページを出力へ流し込み、outputPath に書き出します。
//
// 出力は一時ファイルへ書いてから rename で公開します。途中で失敗または
// キャンセルされた場合、outputPath に不完全なファイルが残ることはありません。
// キャンセルはページバッチ境界と文書境界で確認します。
func (e *Executor) Run(ctx context.Context, plan *Plan, outputPath string, opts Options, progress ProgressReporter) (*MergeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if plan == nil || plan.Len() == 0 {
		return nil, NewError(CodeEmptyPlan, "結合対象の文書がありません。", nil)
	}
	totalPages := plan.TotalPages()
	if totalPages == 0 {
		return nil, NewError(CodeNoPagesSelected, "結合対象のページが選択されていません。", nil)
	}

	builder, err := e.codec.NewBuilder()
	if err != nil {
		return nil, NewError(CodeWriteFailed, "出力文書の初期化に失敗しました。", err)
	}
	defer func() {
		if discardErr := builder.Discard(); discardErr != nil {
			e.logf("failed to discard builder: %v", discardErr)
		}
	}()

	processed := 0
	var skipped []string

	for _, entry := range plan.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, NewError(CodeCanceled, "結合がキャンセルされました。", err)
		}

		handle := entry.Handle
		reportProgress(progress, fmt.Sprintf("%s を処理中...", handle.Name()), pagePercent(processed, totalPages))

		if handle.Encrypted() {
			if err := e.codec.Unlock(handle.Path(), ""); err != nil {
				e.logf("skipping encrypted source %s: %v", handle.Name(), err)
				reportProgress(progress,
					fmt.Sprintf("%s はパスワード保護のためスキップしました", handle.Name()),
					pagePercent(processed, totalPages))
				skipped = append(skipped, handle.Name())
				continue
			}
		}

		pages := entry.Selection
		if pages == nil {
			pages = make([]int, handle.PageCount())
			for i := range pages {
				pages[i] = i
			}
		}
		pages = dropOutOfRange(pages, handle.PageCount())

		entryStart := processed
		for _, batch := range batchPages(pages, appendBatchSize) {
			if err := ctx.Err(); err != nil {
				return nil, NewError(CodeCanceled, "結合がキャンセルされました。", err)
			}
			if err := builder.AppendPages(handle.Path(), batch); err != nil {
				return nil, NewError(CodeWriteFailed,
					fmt.Sprintf("%s のページ追加に失敗しました。", handle.Name()), err)
			}
			processed += len(batch)
			reportProgress(progress,
				fmt.Sprintf("ページを追加中 (%d/%d)", processed, totalPages),
				pagePercent(processed, totalPages))
		}

		if opts.PreserveBookmarks && processed > entryStart {
			if err := builder.CloneOutline(handle.Path(), entryStart); err != nil {
				// しおりを持たない文書もあるため、複製失敗は結合を止めません。
				e.logf("failed to clone outline of %s: %v", handle.Name(), err)
			}
		}
	}

	if processed == 0 {
		return nil, NewError(CodeNoPagesSelected, "すべての入力文書がスキップされ、出力するページがありません。", nil)
	}

	if opts.PreserveMetadata {
		meta := e.outputMetadata(plan, opts)
		if err := builder.SetMetadata(meta); err != nil {
			return nil, NewError(CodeWriteFailed, "出力文書のメタデータ設定に失敗しました。", err)
		}
	}

	reportProgress(progress, "結合結果を書き出しています...", 95)

	tmpPath, err := tempOutputPath(outputPath)
	if err != nil {
		return nil, NewError(CodeWriteFailed, "一時出力ファイルの作成に失敗しました。", err)
	}
	if err := builder.WriteTo(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, NewError(CodeWriteFailed, "出力文書の書き出しに失敗しました。", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, NewError(CodeCanceled, "結合がキャンセルされました。", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, NewError(CodeWriteFailed, "出力文書の配置に失敗しました。", err)
	}

	reportProgress(progress, "結合が完了しました", 100)

	return &MergeResult{
		OutputPath:     outputPath,
		WrittenPages:   processed,
		SkippedSources: skipped,
	}, nil
}

// outputMetadata は出力文書に設定するメタデータを決定します。
// 上書き指定がなければ、先頭文書の著者を引き継いだ合成メタデータを返します。
func (e *Executor) outputMetadata(plan *Plan, opts Options) Metadata {
	if opts.MetadataOverride != nil {
		return *opts.MetadataOverride
	}

	meta := Metadata{
		Title:   "Merged Document - " + e.now().Format("2006-01-02"),
		Author:  toolName,
		Subject: "Merged Document",
		Creator: toolName,
	}
	if entries := plan.Entries(); len(entries) > 0 {
		if author := entries[0].Handle.Metadata().Author; author != "" {
			meta.Author = author
		}
	}
	return meta
}

func (e *Executor) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// pagePercent はページ処理中の進捗を 0〜94% に割り付けます。
// 95% は書き出し、100% は完了に予約されているため、進捗は単調非減少になります。
func pagePercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return processed * 94 / total
}

// dropOutOfRange は実ページ数に収まらない番号を黙って除外します。
// open 後にページ数が変わることは想定していませんが、結合は中断しません。
func dropOutOfRange(pages []int, pageCount int) []int {
	kept := pages[:0:0]
	for _, p := range pages {
		if p >= 0 && p < pageCount {
			kept = append(kept, p)
		}
	}
	return kept
}

func batchPages(pages []int, size int) [][]int {
	if size <= 0 {
		size = len(pages)
	}
	var batches [][]int
	for len(pages) > 0 {
		n := size
		if n > len(pages) {
			n = len(pages)
		}
		batches = append(batches, pages[:n])
		pages = pages[n:]
	}
	return batches
}

// tempOutputPath は出力先と同じディレクトリに一時ファイルを確保します。
// rename が原子的に行えるのは同一ファイルシステム内に限られます。
func tempOutputPath(outputPath string) (string, error) {
	dir := filepath.Dir(outputPath)
	f, err := os.CreateTemp(dir, ".merge-*.pdf")
	if err != nil {
		return "", err
	}
	tmpPath := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

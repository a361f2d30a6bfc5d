package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/page-binder/internal/merge"
)

// JobRunner はジョブを実行できるサービスが実装します。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string, reporter merge.ProgressReporter) (*Result, error)
	DiscardJob(jobID string) error
}

// MergeService は結合ジョブの準備と実行を提供します。
type MergeService interface {
	JobRunner
	PrepareMergeJob(ctx context.Context, files []*multipart.FileHeader, ranges []string, options MergeOptions) (*JobManifest, error)
}

// InspectService は単一PDFの検査を提供します。
type InspectService interface {
	InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error)
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, op OperationType, jobID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
	AsyncThresholdPages int
}

// MergeHandler は POST /api/pdf/merge のハンドラーを返します。
func MergeHandler(svc MergeService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := form.File["files[]"]
		if len(files) == 0 {
			files = form.File["files"]
		}
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": "アップロードされたPDFファイルが見つかりません。",
			})
			return
		}

		ranges, err := parseRanges(c, len(files))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		options, err := parseMergeOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareMergeJob(c.Request.Context(), files, ranges, options)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if shouldProcessAsync(manifest, opts) {
			if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.Operation, manifest.JobID); err != nil {
				if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
					err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
				}
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
			return
		}

		result, err := svc.RunJob(c.Request.Context(), manifest.JobID, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Cleanup()

		if err := streamResult(c, result, "結合結果の読み込みに失敗しました"); err != nil {
			respondWithError(c, err)
		}
	}
}

// InspectHandler は POST /api/pdf/inspect のハンドラーを返します。
func InspectHandler(svc InspectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    merge.CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		result, err := svc.InspectMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func shouldProcessAsync(manifest *JobManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}

	if opts.AsyncThresholdBytes > 0 {
		var total int64
		for _, f := range manifest.Files {
			total += f.Size
		}
		if total > opts.AsyncThresholdBytes {
			return true
		}
	}

	if opts.AsyncThresholdPages > 0 {
		var total int
		for _, f := range manifest.Files {
			total += f.Pages
		}
		if total > opts.AsyncThresholdPages {
			return true
		}
	}

	return false
}

// parseRanges はファイルごとのページ指定を取り出します。
// "ranges" フィールド（JSON文字列配列）または ranges[] の繰り返しを受け付けます。
func parseRanges(c *gin.Context, fileCount int) ([]string, error) {
	var ranges []string

	if raw := strings.TrimSpace(c.PostForm("ranges")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
			return nil, errors.New(`ranges は JSON 形式の文字列配列で指定してください。例: ["1-3","","2,5"]`)
		}
	} else if values := c.PostFormArray("ranges[]"); len(values) > 0 {
		ranges = values
	}

	if len(ranges) == 0 {
		return nil, nil
	}
	if len(ranges) != fileCount {
		return nil, errors.New("ranges の要素数はファイル数と一致させてください。")
	}
	for i, r := range ranges {
		ranges[i] = strings.TrimSpace(r)
	}
	return ranges, nil
}

func parseMergeOptions(c *gin.Context) (MergeOptions, error) {
	options := DefaultMergeOptions()

	parse := func(field string, target *bool) error {
		raw := strings.TrimSpace(c.PostForm(field))
		if raw == "" {
			return nil
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s は true/false で指定してください。", field)
		}
		*target = value
		return nil
	}

	if err := parse("preserveBookmarks", &options.PreserveBookmarks); err != nil {
		return options, err
	}
	if err := parse("preserveMetadata", &options.PreserveMetadata); err != nil {
		return options, err
	}
	return options, nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *merge.Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case merge.CodeLimitExceeded:
			status = http.StatusRequestEntityTooLarge
		case merge.CodeCanceled:
			status = http.StatusRequestTimeout
		case merge.CodeWriteFailed:
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("PDFファイルを選択してください。")
	}
	for _, field := range []string{"file", "file[]", "files", "files[]"} {
		if file := form.File[field]; len(file) > 0 {
			return file[0], nil
		}
	}
	return nil, errors.New("PDFファイルを選択してください。")
}

func streamResult(c *gin.Context, result *Result, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	const contentType = "application/pdf"
	encodedName := url.PathEscape(result.OutputFilename)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}

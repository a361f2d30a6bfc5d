// Package pdf はPDF結合サービスを提供します。
// アップロードされた入力をジョブ単位のワークスペースへ保存し、
// internal/merge の結合エンジンで処理します。
package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/page-binder/internal/config"
	"github.com/yourusername/page-binder/internal/merge"
)

const defaultCleanupMin = 10

// workspace はジョブ1件分の作業ディレクトリ構成です。
type workspace struct {
	jobID  string
	dir    string
	inDir  string
	outDir string
}

func (w workspace) manifestPath() string {
	return filepath.Join(w.dir, manifestFilename)
}

// Service はアップロード受付から結合実行までを担います。
type Service struct {
	cfg     *config.Config
	codec   merge.Codec
	logger  *log.Logger
	baseDir string
	now     func() time.Time
}

// NewService は Service を作成します。logger は nil でも構いません。
func NewService(cfg *config.Config, logger *log.Logger) *Service {
	baseDir := cfg.WorkDir
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "page-binder")
	}
	return &Service{
		cfg:     cfg,
		codec:   merge.NewPDFCPUCodec(),
		logger:  logger,
		baseDir: baseDir,
		now:     time.Now,
	}
}

func (s *Service) createWorkspace() (workspace, error) {
	jobID := uuid.NewString()
	ws := s.workspaceFor(jobID)
	for _, dir := range []string{ws.inDir, ws.outDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return workspace{}, fmt.Errorf("failed to create workspace: %w", err)
		}
	}
	return ws, nil
}

func (s *Service) workspaceFor(jobID string) workspace {
	dir := filepath.Join(s.baseDir, jobID)
	return workspace{
		jobID:  jobID,
		dir:    dir,
		inDir:  filepath.Join(dir, "in"),
		outDir: filepath.Join(dir, "out"),
	}
}

// scheduleCleanup はジョブ有効期限が切れたワークスペースを削除します。
func (s *Service) scheduleCleanup(dir string) {
	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	time.AfterFunc(time.Duration(expireMinutes)*time.Minute, func() {
		_ = removeDir(dir)
	})
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	pages        int
	encrypted    bool
}

// storeMultipartFile はアップロードされた1ファイルを検証しつつ destDir に保存し、
// ページ数などの情報を検査して返します。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, destDir string, index int) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	if file == nil {
		return storedFile{}, merge.NewError(merge.CodeInvalidInput, "PDFファイルを選択してください。", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return storedFile{}, merge.NewError(merge.CodeLimitExceeded,
			fmt.Sprintf("%s のサイズが上限を超えています。", file.Filename), nil)
	}

	src, err := file.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(destDir, fmt.Sprintf("src-%03d.pdf", index+1))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to create stored file: %w", err)
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to store upload: %w", err)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil || !mt.Is("application/pdf") {
		return storedFile{}, merge.NewError(merge.CodeInvalidInput,
			fmt.Sprintf("%s はPDFファイルではありません。", file.Filename), err)
	}

	info, err := s.codec.Open(path)
	if err != nil {
		return storedFile{}, merge.NewError(merge.CodeOpenFailed,
			fmt.Sprintf("%s を読み込めませんでした。ファイルが破損していないか確認してください。", file.Filename), err)
	}
	if s.cfg.MaxPages > 0 && info.PageCount > s.cfg.MaxPages {
		return storedFile{}, merge.NewError(merge.CodeLimitExceeded,
			fmt.Sprintf("%s のページ数が上限を超えています。", file.Filename), nil)
	}

	return storedFile{
		path:         path,
		originalName: sanitizeFilename(file.Filename),
		size:         written,
		pages:        info.PageCount,
		encrypted:    info.Encrypted,
	}, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "document.pdf"
	}
	return name
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

func writeJSON(path string, v any) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	err = enc.Encode(v)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

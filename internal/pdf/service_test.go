package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/yourusername/page-binder/internal/config"
	"github.com/yourusername/page-binder/internal/merge"
)

type fakeCodec struct {
	pageCount int
	openCalls int
}

func (c *fakeCodec) Open(string) (*merge.DocumentInfo, error) {
	c.openCalls++
	return &merge.DocumentInfo{
		PageCount: c.pageCount,
		Metadata:  merge.Metadata{Author: "Suzuki"},
	}, nil
}

func (c *fakeCodec) Unlock(string, string) error {
	return nil
}

func (c *fakeCodec) NewBuilder() (merge.Builder, error) {
	return &fakeBuilder{}, nil
}

type fakeBuilder struct {
	pages int
}

func (b *fakeBuilder) AppendPages(_ string, pages []int) error {
	b.pages += len(pages)
	return nil
}

func (b *fakeBuilder) CloneOutline(string, int) error { return nil }

func (b *fakeBuilder) SetMetadata(merge.Metadata) error { return nil }

func (b *fakeBuilder) WriteTo(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%%PDF-1.7 %d pages", b.pages)), 0o640)
}

func (b *fakeBuilder) Discard() error { return nil }

func newTestService(t *testing.T, pageCount int) *Service {
	t.Helper()

	cfg := &config.Config{
		WorkDir:          t.TempDir(),
		MaxFileSize:      1 << 20,
		MaxPages:         100,
		JobExpireMinutes: 10,
	}
	svc := NewService(cfg, nil)
	svc.codec = &fakeCodec{pageCount: pageCount}
	return svc
}

// uploadHeaders は multipart リクエストを組み立て直して FileHeader を得ます。
func uploadHeaders(t *testing.T, names ...string) []*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range names {
		part, err := writer.CreateFormFile("files[]", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("%PDF-1.7\nfake content for " + name)); err != nil {
			t.Fatalf("part write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(4 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files[]"]
}

func TestMergeMultipartProducesResult(t *testing.T) {
	svc := newTestService(t, 3)
	files := uploadHeaders(t, "a.pdf", "b.pdf")

	result, err := svc.MergeMultipart(context.Background(), files, nil, DefaultMergeOptions())
	if err != nil {
		t.Fatalf("MergeMultipart: %v", err)
	}
	defer result.Cleanup()

	if result.Operation != OperationMerge {
		t.Errorf("Operation = %q", result.Operation)
	}
	if result.OutputFilename != "merged.pdf" {
		t.Errorf("OutputFilename = %q", result.OutputFilename)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if result.OutputSize <= 0 {
		t.Errorf("OutputSize = %d", result.OutputSize)
	}

	meta := result.Meta
	if meta == nil {
		t.Fatal("Meta is nil")
	}
	if meta.TotalPages != 6 {
		t.Errorf("TotalPages = %d, want 6", meta.TotalPages)
	}
	if len(meta.Sources) != 2 || meta.Sources[0].Name != "a.pdf" {
		t.Errorf("Sources = %+v", meta.Sources)
	}
}

func TestMergeMultipartRejectsInvalidRange(t *testing.T) {
	svc := newTestService(t, 3)
	files := uploadHeaders(t, "a.pdf")

	_, err := svc.MergeMultipart(context.Background(), files, []string{"1-2-3"}, DefaultMergeOptions())
	var apiErr *merge.Error
	if !errors.As(err, &apiErr) || apiErr.Code != merge.CodeInvalidRange {
		t.Fatalf("err = %v, want INVALID_RANGE", err)
	}

	// 失敗したジョブのワークスペースは残さない
	entries, readErr := os.ReadDir(svc.baseDir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up: %v", entries)
	}
}

func TestMergeMultipartRejectsRangeCountMismatch(t *testing.T) {
	svc := newTestService(t, 3)
	files := uploadHeaders(t, "a.pdf", "b.pdf")

	_, err := svc.MergeMultipart(context.Background(), files, []string{"1-2"}, DefaultMergeOptions())
	var apiErr *merge.Error
	if !errors.As(err, &apiErr) || apiErr.Code != merge.CodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}

func TestMergeMultipartRejectsNonPDF(t *testing.T) {
	svc := newTestService(t, 3)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files[]", "note.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("plain text, not a pdf")); err != nil {
		t.Fatalf("part write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}
	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(4 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	defer form.RemoveAll()

	_, err = svc.MergeMultipart(context.Background(), form.File["files[]"], nil, DefaultMergeOptions())
	var apiErr *merge.Error
	if !errors.As(err, &apiErr) || apiErr.Code != merge.CodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}

func TestPrepareMergeJobThenRunJob(t *testing.T) {
	svc := newTestService(t, 4)
	files := uploadHeaders(t, "x.pdf", "y.pdf")

	manifest, err := svc.PrepareMergeJob(context.Background(), files, []string{"1-2", ""}, DefaultMergeOptions())
	if err != nil {
		t.Fatalf("PrepareMergeJob: %v", err)
	}
	if manifest.JobID == "" {
		t.Fatal("JobID is empty")
	}
	if len(manifest.Files) != 2 || manifest.Files[0].Ranges != "1-2" {
		t.Errorf("manifest files = %+v", manifest.Files)
	}

	// マニフェストは保存済みで、ワーカーが後から読み出せる
	ws := svc.workspaceFor(manifest.JobID)
	if _, err := os.Stat(ws.manifestPath()); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}

	var lastPercent int
	result, err := svc.RunJob(context.Background(), manifest.JobID, func(_ string, percent int) {
		lastPercent = percent
	})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	defer result.Cleanup()

	if lastPercent != 100 {
		t.Errorf("final progress = %d, want 100", lastPercent)
	}
	if result.Meta == nil || result.Meta.TotalPages != 6 {
		t.Errorf("Meta = %+v, want TotalPages 6 (2 selected + 4 full)", result.Meta)
	}
	if _, err := os.Stat(filepath.Join(ws.dir, "meta.json")); err != nil {
		t.Errorf("meta.json missing: %v", err)
	}
}

func TestRunJobUnknownIDFails(t *testing.T) {
	svc := newTestService(t, 3)
	if _, err := svc.RunJob(context.Background(), "no-such-job", nil); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestDiscardJobRemovesWorkspace(t *testing.T) {
	svc := newTestService(t, 3)
	files := uploadHeaders(t, "a.pdf")

	manifest, err := svc.PrepareMergeJob(context.Background(), files, nil, DefaultMergeOptions())
	if err != nil {
		t.Fatalf("PrepareMergeJob: %v", err)
	}
	if err := svc.DiscardJob(manifest.JobID); err != nil {
		t.Fatalf("DiscardJob: %v", err)
	}
	if _, err := os.Stat(svc.workspaceFor(manifest.JobID).dir); !os.IsNotExist(err) {
		t.Errorf("workspace should be removed, stat err = %v", err)
	}
}

func TestInspectMultipartReportsDocumentInfo(t *testing.T) {
	svc := newTestService(t, 7)
	files := uploadHeaders(t, "report.pdf")

	result, err := svc.InspectMultipart(context.Background(), files[0])
	if err != nil {
		t.Fatalf("InspectMultipart: %v", err)
	}
	if result.Source.Name != "report.pdf" || result.Source.Pages != 7 {
		t.Errorf("Source = %+v", result.Source)
	}
	if result.Metadata.Author != "Suzuki" {
		t.Errorf("Author = %q", result.Metadata.Author)
	}

	// 検査用ワークスペースはその場で破棄される
	entries, err := os.ReadDir(svc.baseDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up: %v", entries)
	}
}

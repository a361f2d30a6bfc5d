package pdf

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/yourusername/page-binder/internal/merge"
)

type stubMergeService struct {
	prepareErr error
	runErr     error
	manifest   *JobManifest
	result     *Result

	gotRanges    []string
	gotOptions   MergeOptions
	ranCount     int
	discardCount int
}

func (s *stubMergeService) PrepareMergeJob(_ context.Context, files []*multipart.FileHeader, ranges []string, options MergeOptions) (*JobManifest, error) {
	s.gotRanges = ranges
	s.gotOptions = options
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	if s.manifest != nil {
		return s.manifest, nil
	}
	manifest := &JobManifest{JobID: "job-1", Operation: OperationMerge}
	for _, f := range files {
		manifest.Files = append(manifest.Files, JobFile{OriginalName: f.Filename, Size: f.Size})
	}
	return manifest, nil
}

func (s *stubMergeService) RunJob(_ context.Context, _ string, _ merge.ProgressReporter) (*Result, error) {
	s.ranCount++
	if s.runErr != nil {
		return nil, s.runErr
	}
	return s.result, nil
}

func (s *stubMergeService) DiscardJob(string) error {
	s.discardCount++
	return nil
}

type stubScheduler struct {
	jobIDs []string
	err    error
}

func (s *stubScheduler) Schedule(_ context.Context, _ OperationType, jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.jobIDs = append(s.jobIDs, jobID)
	return nil
}

func buildMergeRequest(t *testing.T, fields map[string]string, files int) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i := 0; i < files; i++ {
		part, err := writer.CreateFormFile("files[]", "doc.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("%PDF-1.7 fake")); err != nil {
			t.Fatalf("part write: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s): %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/merge", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newMergeRouter(svc MergeService, opts HandlerOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/pdf/merge", MergeHandler(svc, opts))
	return router
}

func newTestResult(t *testing.T) *Result {
	t.Helper()

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "merged.pdf")
	payload := []byte("%PDF-1.7 merged")
	if err := os.WriteFile(outputPath, payload, 0o600); err != nil {
		t.Fatalf("write output: %v", err)
	}
	return &Result{
		JobID:          "job-1",
		Operation:      OperationMerge,
		OutputPath:     outputPath,
		OutputFilename: "merged.pdf",
		OutputSize:     int64(len(payload)),
		jobDir:         dir,
	}
}

func TestMergeHandlerStreamsResult(t *testing.T) {
	svc := &stubMergeService{result: newTestResult(t)}
	router := newMergeRouter(svc, HandlerOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, nil, 2))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("X-Job-Id"); got != "job-1" {
		t.Errorf("X-Job-Id = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("%PDF-1.7 merged")) {
		t.Errorf("body = %q", rec.Body.String())
	}
	if svc.ranCount != 1 {
		t.Errorf("ranCount = %d, want 1", svc.ranCount)
	}
	if _, err := os.Stat(svc.result.jobDir); !os.IsNotExist(err) {
		t.Errorf("job dir should be cleaned up after streaming, stat err = %v", err)
	}
}

func TestMergeHandlerParsesRangesAndOptions(t *testing.T) {
	svc := &stubMergeService{result: newTestResult(t)}
	router := newMergeRouter(svc, HandlerOptions{})

	fields := map[string]string{
		"ranges":            `["1-3", "", "2,5"]`,
		"preserveBookmarks": "false",
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, fields, 3))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff([]string{"1-3", "", "2,5"}, svc.gotRanges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	want := MergeOptions{PreserveBookmarks: false, PreserveMetadata: true}
	if diff := cmp.Diff(want, svc.gotOptions); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeHandlerRejectsRangeCountMismatch(t *testing.T) {
	svc := &stubMergeService{}
	router := newMergeRouter(svc, HandlerOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, map[string]string{"ranges": `["1-3"]`}, 2))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.ranCount != 0 {
		t.Errorf("RunJob should not be called, ranCount = %d", svc.ranCount)
	}
}

func TestMergeHandlerRejectsMissingFiles(t *testing.T) {
	svc := &stubMergeService{}
	router := newMergeRouter(svc, HandlerOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, map[string]string{"dummy": "1"}, 0))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMergeHandlerMapsErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"limit exceeded", merge.NewError(merge.CodeLimitExceeded, "大きすぎます", nil), http.StatusRequestEntityTooLarge},
		{"invalid range", merge.NewError(merge.CodeInvalidRange, "範囲が不正です", nil), http.StatusBadRequest},
		{"canceled", merge.NewError(merge.CodeCanceled, "中断されました", context.Canceled), http.StatusRequestTimeout},
		{"write failed", merge.NewError(merge.CodeWriteFailed, "書き込みに失敗しました", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubMergeService{prepareErr: tt.err}
			router := newMergeRouter(svc, HandlerOptions{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, buildMergeRequest(t, nil, 1))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestMergeHandlerSchedulesLargeJobs(t *testing.T) {
	manifest := &JobManifest{
		JobID:     "job-async",
		Operation: OperationMerge,
		Files: []JobFile{
			{OriginalName: "a.pdf", Size: 40 << 20, Pages: 120},
			{OriginalName: "b.pdf", Size: 30 << 20, Pages: 80},
		},
	}
	svc := &stubMergeService{manifest: manifest}
	scheduler := &stubScheduler{}
	router := newMergeRouter(svc, HandlerOptions{
		Scheduler:           scheduler,
		AsyncThresholdBytes: 50 << 20,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, nil, 2))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff([]string{"job-async"}, scheduler.jobIDs); diff != "" {
		t.Errorf("scheduled jobs mismatch (-want +got):\n%s", diff)
	}
	if svc.ranCount != 0 {
		t.Errorf("RunJob should not run for async jobs, ranCount = %d", svc.ranCount)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("job-async")) {
		t.Errorf("body should contain jobId, got %s", rec.Body.String())
	}
}

func TestMergeHandlerRunsSmallJobsSynchronously(t *testing.T) {
	svc := &stubMergeService{result: newTestResult(t)}
	scheduler := &stubScheduler{}
	router := newMergeRouter(svc, HandlerOptions{
		Scheduler:           scheduler,
		AsyncThresholdBytes: 100 << 20,
		AsyncThresholdPages: 1000,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, buildMergeRequest(t, nil, 1))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(scheduler.jobIDs) != 0 {
		t.Errorf("small job should not be scheduled, got %v", scheduler.jobIDs)
	}
}

type stubInspectService struct {
	result *InspectResult
	err    error
}

func (s *stubInspectService) InspectMultipart(context.Context, *multipart.FileHeader) (*InspectResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestInspectHandlerReturnsDocumentInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubInspectService{
		result: &InspectResult{
			Source:   SourceFileMeta{Name: "report.pdf", Size: 1024, Pages: 12},
			Metadata: merge.Metadata{Title: "Report"},
		},
	}
	router := gin.New()
	router.POST("/api/pdf/inspect", InspectHandler(svc))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.7 fake")); err != nil {
		t.Fatalf("part write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/inspect", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("report.pdf")) {
		t.Errorf("body should contain file name, got %s", rec.Body.String())
	}
}

package pdf

import (
	"context"
	"mime/multipart"

	"github.com/yourusername/page-binder/internal/merge"
)

// InspectResult はアップロードされたPDFの基本情報を表します。
type InspectResult struct {
	Source   SourceFileMeta `json:"source"`
	Metadata merge.Metadata `json:"metadata"`
}

// InspectMultipart は単一PDFを受け取り、ページ数・暗号化状態・メタデータを返します。
// 結合前の確認画面（ファイル一覧やプロパティ表示）が利用します。
func (s *Service) InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, merge.NewError(merge.CodeInvalidInput, "PDFファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0)
	if err != nil {
		return nil, err
	}

	handle, err := merge.OpenDocument(s.codec, stored.path)
	if err != nil {
		return nil, err
	}

	return &InspectResult{
		Source: SourceFileMeta{
			Name:      stored.originalName,
			Size:      stored.size,
			Pages:     stored.pages,
			Encrypted: stored.encrypted,
		},
		Metadata: handle.Metadata(),
	}, nil
}

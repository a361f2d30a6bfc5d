package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DocumentHandle は結合対象となる1つの入力文書を表します。
// OpenDocument 成功時に一度だけ構築され、以後は変更されません。
type DocumentHandle struct {
	path      string
	name      string
	pageCount int
	byteSize  int64
	modTime   time.Time
	encrypted bool
	metadata  Metadata
}

// OpenDocument は文書を1回だけ開いて検査し、ハンドルを構築します。
// 開けない・解析できない文書は OPEN_FAILED を返し、部分的なハンドルは作りません。
func OpenDocument(codec Codec, path string) (*DocumentHandle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, NewError(CodeOpenFailed,
			fmt.Sprintf("ファイル %s が見つかりません。", filepath.Base(path)), err)
	}

	info, err := codec.Open(path)
	if err != nil {
		return nil, NewError(CodeOpenFailed,
			fmt.Sprintf("ファイル %s を読み込めませんでした。", filepath.Base(path)), err)
	}

	return &DocumentHandle{
		path:      path,
		name:      filepath.Base(path),
		pageCount: info.PageCount,
		byteSize:  fi.Size(),
		modTime:   fi.ModTime(),
		encrypted: info.Encrypted,
		metadata:  info.Metadata,
	}, nil
}

// Valid はページを1枚以上持つ正常な文書かどうかを返します。
func (h *DocumentHandle) Valid() bool {
	return h != nil && h.pageCount > 0
}

func (h *DocumentHandle) Path() string       { return h.path }
func (h *DocumentHandle) Name() string       { return h.name }
func (h *DocumentHandle) PageCount() int     { return h.pageCount }
func (h *DocumentHandle) ByteSize() int64    { return h.byteSize }
func (h *DocumentHandle) ModTime() time.Time { return h.modTime }
func (h *DocumentHandle) Encrypted() bool    { return h.encrypted }
func (h *DocumentHandle) Metadata() Metadata { return h.metadata }

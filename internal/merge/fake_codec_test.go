package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// fakeCodec は呼び出しを記録するテスト用コーデックです。
type fakeCodec struct {
	docs       map[string]*DocumentInfo
	unlockFail map[string]bool
	writeErr   error

	openCalls    int
	unlockCalls  int
	builderCalls int
	builders     []*fakeBuilder
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		docs:       make(map[string]*DocumentInfo),
		unlockFail: make(map[string]bool),
	}
}

func (c *fakeCodec) totalCalls() int {
	return c.openCalls + c.unlockCalls + c.builderCalls
}

func (c *fakeCodec) Open(path string) (*DocumentInfo, error) {
	c.openCalls++
	info, ok := c.docs[path]
	if !ok {
		return nil, fmt.Errorf("unknown document: %s", path)
	}
	copied := *info
	return &copied, nil
}

func (c *fakeCodec) Unlock(path, password string) error {
	c.unlockCalls++
	if c.unlockFail[path] {
		return fmt.Errorf("wrong password for %s", path)
	}
	return nil
}

func (c *fakeCodec) NewBuilder() (Builder, error) {
	c.builderCalls++
	b := &fakeBuilder{writeErr: c.writeErr}
	c.builders = append(c.builders, b)
	return b, nil
}

type appendCall struct {
	src   string
	pages []int
}

type outlineCall struct {
	src    string
	offset int
}

type fakeBuilder struct {
	appends   []appendCall
	outlines  []outlineCall
	meta      *Metadata
	writeErr  error
	discarded bool
}

func (b *fakeBuilder) AppendPages(src string, pages []int) error {
	b.appends = append(b.appends, appendCall{src: src, pages: append([]int(nil), pages...)})
	return nil
}

func (b *fakeBuilder) CloneOutline(src string, pageOffset int) error {
	b.outlines = append(b.outlines, outlineCall{src: src, offset: pageOffset})
	return nil
}

func (b *fakeBuilder) SetMetadata(meta Metadata) error {
	b.meta = &meta
	return nil
}

func (b *fakeBuilder) WriteTo(path string) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	return os.WriteFile(path, []byte("%PDF-1.4 fake merged output"), 0o640)
}

func (b *fakeBuilder) Discard() error {
	b.discarded = true
	return nil
}

// appendedPages は src から追加されたページをバッチをまたいで平坦化します。
func (b *fakeBuilder) appendedPages(src string) []int {
	var pages []int
	for _, call := range b.appends {
		if call.src == src {
			pages = append(pages, call.pages...)
		}
	}
	return pages
}

func (b *fakeBuilder) totalAppended() int {
	total := 0
	for _, call := range b.appends {
		total += len(call.pages)
	}
	return total
}

// newTestDocument はダミーの入力ファイルを作り、フェイクコーデックに登録して
// ハンドルを返します。
func newTestDocument(t *testing.T, codec *fakeCodec, dir, name string, pageCount int, info DocumentInfo) *DocumentHandle {
	t.Helper()

	path := filepath.Join(dir, name)
	content := make([]byte, 64+pageCount)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		t.Fatalf("failed to write test document: %v", err)
	}

	info.PageCount = pageCount
	codec.docs[path] = &info

	handle, err := OpenDocument(codec, path)
	if err != nil {
		t.Fatalf("OpenDocument(%s) returned error: %v", name, err)
	}
	return handle
}

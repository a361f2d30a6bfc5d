package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfcpuCodec は pdfcpu を用いた Codec の本番実装です。
type pdfcpuCodec struct {
	conf *model.Configuration
}

// NewPDFCPUCodec は pdfcpu ベースのコーデックを作成します。
// 既定の空パスワードで復号を試みるため、空のユーザーパスワードで
// 暗号化された文書はそのまま開けます。
func NewPDFCPUCodec() Codec {
	return &pdfcpuCodec{conf: relaxedConfiguration("")}
}

func relaxedConfiguration(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

func (c *pdfcpuCodec) Open(path string) (*DocumentInfo, error) {
	ctx, err := readContext(path, c.conf)
	if err != nil {
		return nil, err
	}

	return &DocumentInfo{
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
		Metadata: Metadata{
			Title:    ctx.Title,
			Author:   ctx.Author,
			Subject:  ctx.Subject,
			Creator:  ctx.Creator,
			Producer: ctx.Producer,
			// Configuration 側にも CreationDate があるため XRefTable を明示する。
			CreationDate: ctx.XRefTable.CreationDate,
			ModDate:      ctx.ModDate,
		},
	}, nil
}

func (c *pdfcpuCodec) Unlock(path, password string) error {
	_, err := readContext(path, relaxedConfiguration(password))
	return err
}

func (c *pdfcpuCodec) NewBuilder() (Builder, error) {
	dir, err := os.MkdirTemp("", "page-binder-build-")
	if err != nil {
		return nil, err
	}
	return &pdfcpuBuilder{conf: c.conf, dir: dir}, nil
}

func readContext(path string, conf *model.Configuration) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// pdfcpuBuilder はソースごとに選択ページを部分ファイルへ抽出し、
// WriteTo で1つの文書に組み立てます。
type pdfcpuBuilder struct {
	conf      *model.Configuration
	dir       string
	parts     []string
	bookmarks []pdfcpu.Bookmark
	meta      *Metadata
}

func (b *pdfcpuBuilder) AppendPages(src string, pages []int) error {
	if len(pages) == 0 {
		return nil
	}
	selection := make([]string, len(pages))
	for i, p := range pages {
		selection[i] = strconv.Itoa(p + 1)
	}
	part := filepath.Join(b.dir, fmt.Sprintf("part-%04d.pdf", len(b.parts)+1))
	if err := api.CollectFile(src, part, selection, b.conf); err != nil {
		return err
	}
	b.parts = append(b.parts, part)
	return nil
}

func (b *pdfcpuBuilder) CloneOutline(src string, pageOffset int) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	bookmarks, err := api.Bookmarks(f, b.conf)
	if err != nil {
		return err
	}
	for _, bm := range bookmarks {
		b.bookmarks = append(b.bookmarks, shiftBookmark(bm, pageOffset))
	}
	return nil
}

func (b *pdfcpuBuilder) SetMetadata(meta Metadata) error {
	b.meta = &meta
	return nil
}

func (b *pdfcpuBuilder) WriteTo(path string) error {
	if len(b.parts) == 0 {
		return errors.New("no pages appended")
	}
	if err := api.MergeCreateFile(b.parts, path, false, b.conf); err != nil {
		return err
	}

	if len(b.bookmarks) > 0 {
		// しおりの適用はベストエフォートとし、失敗しても出力自体は有効です。
		_ = api.AddBookmarksFile(path, path, b.bookmarks, true, b.conf)
	}

	if b.meta != nil {
		if err := applyMetadata(path, *b.meta); err != nil {
			return err
		}
	}
	return nil
}

func (b *pdfcpuBuilder) Discard() error {
	if b.dir == "" {
		return nil
	}
	return os.RemoveAll(b.dir)
}

// shiftBookmark はしおりの対象ページを出力側の位置へずらします。
func shiftBookmark(bm pdfcpu.Bookmark, offset int) pdfcpu.Bookmark {
	bm.PageFrom += offset
	if bm.PageThru > 0 {
		bm.PageThru += offset
	}
	if len(bm.Kids) > 0 {
		kids := make([]pdfcpu.Bookmark, len(bm.Kids))
		for i, kid := range bm.Kids {
			kids[i] = shiftBookmark(kid, offset)
		}
		bm.Kids = kids
	}
	return bm
}

// applyMetadata は出力文書の Info 辞書を書き換えます。
func applyMetadata(path string, meta Metadata) error {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return err
	}

	d := types.Dict{}
	if ctx.Info != nil {
		if existing, derefErr := ctx.DereferenceDict(*ctx.Info); derefErr == nil && existing != nil {
			d = existing
		}
	}

	set := func(key, value string) {
		if value != "" {
			d[key] = types.StringLiteral(value)
		}
	}
	set("Title", meta.Title)
	set("Author", meta.Author)
	set("Subject", meta.Subject)
	set("Creator", meta.Creator)
	set("Producer", meta.Producer)
	set("CreationDate", meta.CreationDate)
	set("ModDate", meta.ModDate)

	if ctx.Info == nil {
		ir, err := ctx.IndRefForNewObject(d)
		if err != nil {
			return err
		}
		ctx.Info = ir
	}

	return api.WriteContextFile(ctx, path)
}

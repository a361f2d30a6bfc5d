package merge

import (
	"fmt"
	"sort"
	"strings"
)

// SortKey は Plan.SortBy の並べ替えキーです。
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
	SortByDate SortKey = "date"
)

type planEntry struct {
	handle *DocumentHandle

	// selection が非nilの場合はそのページのみ、nilの場合は全ページを結合します。
	// 空スライスも「0ページ選択」として有効です。
	selection []int
}

// Entry は Plan の読み取り専用ビューです。
type Entry struct {
	Handle    *DocumentHandle
	Selection []int
}

// Plan は (文書, ページ選択) の順序付きリストです。並び順が出力のページ順を決めます。
// すべての操作は単一ゴルーチンからの利用を想定しています。
type Plan struct {
	entries []planEntry
}

// NewPlan は空の Plan を作成します。
func NewPlan() *Plan {
	return &Plan{}
}

// Add は末尾に文書を追加します。無効なハンドルは追加せずエラーを返します。
func (p *Plan) Add(h *DocumentHandle) error {
	if !h.Valid() {
		return NewError(CodeInvalidInput, "ページを持たない文書は結合対象に追加できません。", nil)
	}
	p.entries = append(p.entries, planEntry{handle: h})
	return nil
}

// Remove は pos の項目を取り除きます。範囲外の場合は何もせずエラーを返します。
func (p *Plan) Remove(pos int) error {
	if pos < 0 || pos >= len(p.entries) {
		return NewError(CodeInvalidInput, fmt.Sprintf("位置 %d の項目は存在しません。", pos), nil)
	}
	p.entries = append(p.entries[:pos], p.entries[pos+1:]...)
	return nil
}

// Move は from の項目を to へ移動します。ページ選択は項目と一緒に移動します。
func (p *Plan) Move(from, to int) error {
	if from < 0 || from >= len(p.entries) || to < 0 || to >= len(p.entries) {
		return NewError(CodeInvalidInput, "移動元または移動先の位置が範囲外です。", nil)
	}
	entry := p.entries[from]
	rest := append(p.entries[:from], p.entries[from+1:]...)
	p.entries = append(rest[:to], append([]planEntry{entry}, rest[to:]...)...)
	return nil
}

// SetSelection は pos の項目にページ選択を設定します。nil を渡すと選択を解除し
// 「全ページ」に戻ります。選択は0始まりで、文書のページ数に収まる必要があります。
func (p *Plan) SetSelection(pos int, pages []int) error {
	if pos < 0 || pos >= len(p.entries) {
		return NewError(CodeInvalidInput, fmt.Sprintf("位置 %d の項目は存在しません。", pos), nil)
	}
	if pages == nil {
		p.entries[pos].selection = nil
		return nil
	}
	max := p.entries[pos].handle.PageCount()
	for _, page := range pages {
		if page < 0 || page >= max {
			return NewError(CodeInvalidRange,
				fmt.Sprintf("ページ番号 %d は文書のページ数 %d を超えています。", page+1, max), nil)
		}
	}
	p.entries[pos].selection = append([]int(nil), pages...)
	return nil
}

// SortBy は安定ソートで項目を並べ替えます。各項目のページ選択は維持されます。
func (p *Plan) SortBy(key SortKey) error {
	switch key {
	case SortByName:
		sort.SliceStable(p.entries, func(i, j int) bool {
			return strings.ToLower(p.entries[i].handle.Name()) < strings.ToLower(p.entries[j].handle.Name())
		})
	case SortBySize:
		sort.SliceStable(p.entries, func(i, j int) bool {
			return p.entries[i].handle.ByteSize() < p.entries[j].handle.ByteSize()
		})
	case SortByDate:
		sort.SliceStable(p.entries, func(i, j int) bool {
			return p.entries[i].handle.ModTime().Before(p.entries[j].handle.ModTime())
		})
	default:
		return NewError(CodeInvalidInput, fmt.Sprintf("並べ替えキー %q は使用できません。", key), nil)
	}
	return nil
}

// Len は項目数を返します。
func (p *Plan) Len() int {
	return len(p.entries)
}

// Clear は全項目を取り除きます。
func (p *Plan) Clear() {
	p.entries = nil
}

// Entries は現在の項目の読み取り専用コピーを返します。
func (p *Plan) Entries() []Entry {
	entries := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		entries[i] = Entry{
			Handle:    e.handle,
			Selection: append([]int(nil), e.selection...),
		}
	}
	return entries
}

// TotalPages は結合される予定の総ページ数を返します。
// ページ選択がある項目は選択数、ない項目は文書の全ページ数を数えます。
func (p *Plan) TotalPages() int {
	total := 0
	for _, e := range p.entries {
		if e.selection != nil {
			total += len(e.selection)
		} else {
			total += e.handle.PageCount()
		}
	}
	return total
}

// TotalBytes は入力文書のファイルサイズ合計を返します。ページ選択では按分しません。
func (p *Plan) TotalBytes() int64 {
	var total int64
	for _, e := range p.entries {
		total += e.handle.ByteSize()
	}
	return total
}

package merge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageRange は "1-5,8,10-12" 形式のページ指定（1始まり）を解析し、
// 0始まり・昇順・重複なしのページ番号列を返します。
//
// 範囲外の単一ページは黙って捨て、範囲指定は [1, pageCount] に切り詰めます。
// 数値でないトークンや "1-2-3" のような形式は INVALID_RANGE を返し、
// その場合は選択を一切適用しません。
func ParsePageRange(expr string, pageCount int) ([]int, error) {
	if pageCount < 0 {
		pageCount = 0
	}

	seen := make(map[int]struct{})
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, NewError(CodeInvalidRange, "ページ指定に空の項目が含まれています。", nil)
		}

		if strings.Contains(token, "-") {
			parts := strings.Split(token, "-")
			if len(parts) != 2 {
				return nil, NewError(CodeInvalidRange,
					fmt.Sprintf("ページ範囲 %q の形式が正しくありません。", token), nil)
			}
			start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, NewError(CodeInvalidRange,
					fmt.Sprintf("ページ範囲 %q の開始が整数ではありません。", token), err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, NewError(CodeInvalidRange,
					fmt.Sprintf("ページ範囲 %q の終了が整数ではありません。", token), err)
			}
			if start < 1 {
				start = 1
			}
			if end > pageCount {
				end = pageCount
			}
			for p := start; p <= end; p++ {
				seen[p-1] = struct{}{}
			}
			continue
		}

		page, err := strconv.Atoi(token)
		if err != nil {
			return nil, NewError(CodeInvalidRange,
				fmt.Sprintf("ページ番号 %q が整数ではありません。", token), err)
		}
		if page >= 1 && page <= pageCount {
			seen[page-1] = struct{}{}
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

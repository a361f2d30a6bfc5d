package merge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		pageCount int
		want      []int
	}{
		{name: "single pages and range", expr: "1-3,2,5", pageCount: 10, want: []int{0, 1, 2, 4}},
		{name: "range clamped to page count", expr: "1-3", pageCount: 2, want: []int{0, 1}},
		{name: "zero lower bound clamped", expr: "0-2", pageCount: 5, want: []int{0, 1}},
		{name: "out of range single dropped", expr: "10", pageCount: 5, want: []int{}},
		{name: "input order does not matter", expr: "10,1-3", pageCount: 12, want: []int{0, 1, 2, 9}},
		{name: "whitespace tolerated", expr: " 1 - 3 , 5 ", pageCount: 10, want: []int{0, 1, 2, 4}},
		{name: "duplicates collapsed", expr: "2,2,2-2", pageCount: 5, want: []int{1}},
		{name: "empty interval after clamp", expr: "4-2", pageCount: 10, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageRange(tt.expr, tt.pageCount)
			if err != nil {
				t.Fatalf("ParsePageRange(%q, %d) returned error: %v", tt.expr, tt.pageCount, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("ParsePageRange(%q, %d) mismatch (-want +got):\n%s", tt.expr, tt.pageCount, diff)
			}
		})
	}
}

func TestParsePageRangeInvalid(t *testing.T) {
	for _, expr := range []string{"abc", "1-2-3", "1,,3", "", "1-x", "x-2"} {
		_, err := ParsePageRange(expr, 5)
		if err == nil {
			t.Fatalf("ParsePageRange(%q, 5) expected error", expr)
		}
		var typed *Error
		if !errors.As(err, &typed) || typed.Code != CodeInvalidRange {
			t.Fatalf("ParsePageRange(%q, 5) unexpected error: %v", expr, err)
		}
	}
}

func TestParsePageRangeBounds(t *testing.T) {
	// 有効な指定から得た番号はすべて [0, pageCount) に収まり、厳密に昇順であること。
	exprs := []string{"1-100", "50,1,100,3-7", "0-3,99-200", "1,1,1"}
	const pageCount = 42

	for _, expr := range exprs {
		pages, err := ParsePageRange(expr, pageCount)
		if err != nil {
			t.Fatalf("ParsePageRange(%q) returned error: %v", expr, err)
		}
		for i, p := range pages {
			if p < 0 || p >= pageCount {
				t.Fatalf("ParsePageRange(%q) produced out-of-range index %d", expr, p)
			}
			if i > 0 && pages[i-1] >= p {
				t.Fatalf("ParsePageRange(%q) not strictly ascending: %v", expr, pages)
			}
		}
	}
}

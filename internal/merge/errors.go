package merge

import "fmt"

// エラーコード一覧。ハンドラーやジョブ管理側はこのコードで分岐します。
const (
	CodeEmptyPlan       = "EMPTY_PLAN"
	CodeNoPagesSelected = "NO_PAGES_SELECTED"
	CodeOpenFailed      = "OPEN_FAILED"
	CodeInvalidRange    = "INVALID_RANGE"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeLimitExceeded   = "LIMIT_EXCEEDED"
	CodeWriteFailed     = "WRITE_FAILED"
	CodeCanceled        = "CANCELED"
)

// Error は利用者に提示可能なメッセージと安定したコードを持つエラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

// NewError は Error を作成します。cause は nil でも構いません。
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

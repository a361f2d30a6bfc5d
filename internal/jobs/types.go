package jobs

import (
	"time"

	"github.com/yourusername/page-binder/internal/pdf"
)

// Status は結合ジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// Stage は結合処理の局面を表す粗い区分です。
// 細かい状況は ProgressInfo.Message が伝えます。
type Stage string

const (
	StageQueued     Stage = "queued"
	StageMerging    Stage = "merging"
	StagePublishing Stage = "publishing"
	StageCompleted  Stage = "completed"
)

// StageForPercent は結合エンジンの進捗率を局面に割り当てます。
// 95% 以降は出力の書き出しに予約されています。
func StageForPercent(percent int) Stage {
	switch {
	case percent >= 100:
		return StageCompleted
	case percent >= 95:
		return StagePublishing
	default:
		return StageMerging
	}
}

// ProgressInfo は進捗の現在値です。Message は結合エンジンからの文言をそのまま保持します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
// Code は結合エンジンのエラーコード（LIMIT_EXCEEDED など）です。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は結合ジョブの現在状態です。
// Meta は結合成功後にのみ設定され、総ページ数やスキップされた入力を含みます。
type Record struct {
	JobID       string            `json:"jobId"`
	Operation   pdf.OperationType `json:"operation"`
	Status      Status            `json:"status"`
	Progress    ProgressInfo      `json:"progress"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	Meta        *pdf.MergeMeta    `json:"meta,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

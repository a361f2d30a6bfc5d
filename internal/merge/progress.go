package merge

// ProgressReporter は進捗更新用コールバックです。
// Run から同一ゴルーチン上で順に呼ばれるため、実装側でブロックしないでください。
type ProgressReporter func(message string, percent int)

func reportProgress(cb ProgressReporter, message string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(message, percent)
}

package merge

// Metadata は文書情報辞書の主要項目を保持します。空文字は「項目なし」を意味します。
type Metadata struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	ModDate      string `json:"modDate,omitempty"`
}

// DocumentInfo はコーデックが open 時に報告する文書情報です。
type DocumentInfo struct {
	PageCount int
	Encrypted bool
	Metadata  Metadata
}

// Codec はページ単位のバイナリ文書を読み書きする外部コラボレーターの抽象です。
// 本番実装は pdfcpu（NewPDFCPUCodec）、テストでは記録用のフェイクを使います。
type Codec interface {
	// Open は文書を検査し、ページ数・暗号化状態・メタデータを報告します。
	Open(path string) (*DocumentInfo, error)

	// Unlock は指定された資格情報で文書のページ読み出しを試みます。
	// 失敗した場合、その文書のページは結合から除外されます。
	Unlock(path, password string) error

	// NewBuilder は出力文書ビルダーを作成します。
	NewBuilder() (Builder, error)
}

// Builder は結合先の出力文書を組み立てます。
// 利用順序は AppendPages*/CloneOutline*/SetMetadata? → WriteTo → Discard です。
// Discard は成功・失敗を問わず必ず呼んでください。
type Builder interface {
	// AppendPages は src の指定ページ（0始まり・昇順）を出力末尾に追加します。
	AppendPages(src string, pages []int) error

	// CloneOutline は src のしおり構造を、出力側の pageOffset ページ分
	// 後ろへずらした位置に複製します。ベストエフォートです。
	CloneOutline(src string, pageOffset int) error

	// SetMetadata は出力文書の文書情報を設定します。
	SetMetadata(meta Metadata) error

	// WriteTo は組み立てた文書を path に書き出します。
	WriteTo(path string) error

	// Discard は中間生成物を破棄します。
	Discard() error
}

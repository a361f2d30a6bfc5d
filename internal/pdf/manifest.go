package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "manifest.json"

// JobManifest は結合ジョブの再現に必要な情報を保持します。
// 非同期実行時はワーカーがこのファイルから計画を組み立て直します。
type JobManifest struct {
	JobID     string        `json:"jobId"`
	Operation OperationType `json:"operation"`
	Files     []JobFile     `json:"files"`
	Options   MergeOptions  `json:"options"`
	CreatedAt time.Time     `json:"createdAt"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
// Ranges は "1-5,8" 形式のページ指定で、空の場合は全ページを結合します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
	Encrypted    bool   `json:"encrypted,omitempty"`
	Ranges       string `json:"ranges,omitempty"`
}

// MergeOptions は結合時の振る舞いを制御します。
type MergeOptions struct {
	PreserveBookmarks bool `json:"preserveBookmarks"`
	PreserveMetadata  bool `json:"preserveMetadata"`
}

// DefaultMergeOptions は既定値（しおり・メタデータとも保持）を返します。
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{PreserveBookmarks: true, PreserveMetadata: true}
}

func toJobFiles(stored []storedFile, ranges []string) []JobFile {
	files := make([]JobFile, len(stored))
	for i, sf := range stored {
		files[i] = JobFile{
			StoredName:   filepath.Base(sf.path),
			OriginalName: sf.originalName,
			Size:         sf.size,
			Pages:        sf.pages,
			Encrypted:    sf.encrypted,
		}
		if i < len(ranges) {
			files[i].Ranges = ranges[i]
		}
	}
	return files
}

func storedFilesFromManifest(jobDir string, manifest *JobManifest) ([]storedFile, []string) {
	if manifest == nil {
		return nil, nil
	}
	stored := make([]storedFile, len(manifest.Files))
	ranges := make([]string, len(manifest.Files))
	for i, f := range manifest.Files {
		stored[i] = storedFile{
			path:         filepath.Join(jobDir, "in", f.StoredName),
			originalName: f.OriginalName,
			size:         f.Size,
			pages:        f.Pages,
			encrypted:    f.Encrypted,
		}
		ranges[i] = f.Ranges
	}
	return stored, ranges
}

func writeManifest(jobDir string, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	return writeJSON(filepath.Join(jobDir, manifestFilename), manifest)
}

func loadManifest(jobDir string) (*JobManifest, error) {
	data, err := os.ReadFile(filepath.Join(jobDir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}

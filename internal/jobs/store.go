package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/page-binder/internal/pdf"
)

const jobKeyPrefix = "pagebinder:job:"

// ErrJobNotFound は状態レコードが存在しない（または期限切れで消えた）場合に返されます。
var ErrJobNotFound = errors.New("job record not found")

// Store は結合ジョブの状態レコードを Redis に保存します。
// レコードの寿命は作成時に確定し、状態遷移で延長されることはありません。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。ttl が 0 以下の場合レコードは無期限です。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。レコードが無い場合は (nil, nil) を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create は投入直後の初期レコードを保存し、寿命をこの時点から起算します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("record requires a jobID")
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkRunning はワーカーがジョブを引き取ったことを記録します。
// 作成時刻と有効期限は投入時のまま保たれます。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, markRunning)
}

// UpdateProgress は進捗を更新します。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress ProgressInfo) error {
	return s.update(ctx, jobID, func(record *Record) {
		record.Progress = progress
	})
}

// MarkDone は結合完了時の成果情報を保存します。
func (s *Store) MarkDone(ctx context.Context, jobID string, downloadURL string, meta *pdf.MergeMeta) error {
	return s.update(ctx, jobID, markDone(downloadURL, meta))
}

// MarkFailed はジョブ失敗を記録します。進捗は失敗時点の値のまま残します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.update(ctx, jobID, markFailed(errInfo))
}

// 状態遷移の本体。Redis を介さず単体で検証できるよう純粋関数にしてあります。

func markRunning(record *Record) {
	record.Status = StatusRunning
	record.Progress = ProgressInfo{Percent: 0, Stage: StageMerging}
	record.Error = nil
}

func markDone(downloadURL string, meta *pdf.MergeMeta) func(*Record) {
	return func(record *Record) {
		record.Status = StatusSucceeded
		record.Progress = ProgressInfo{Percent: 100, Stage: StageCompleted}
		record.DownloadURL = downloadURL
		record.Meta = meta
		record.Error = nil
	}
}

func markFailed(errInfo *ErrorInfo) func(*Record) {
	return func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	}
}

// update は WATCH による楽観ロックで read-modify-write を行います。
// TTL はレコードの ExpiresAt から残り時間を計算し、遷移のたびに延びないようにします。
func (s *Store) update(ctx context.Context, jobID string, mutate func(*Record)) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	key := jobKey(jobID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}

		ttl := s.ttl
		if !record.ExpiresAt.IsZero() {
			ttl = time.Until(record.ExpiresAt)
			if ttl <= 0 {
				// 期限直前の最終遷移はポーリング側が読めるよう短い猶予を与える
				ttl = time.Minute
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job %s was updated concurrently too many times", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

// JsonlStorage keeps reward events in a JSONL file. It is both an archive
// sink and a reward.EventSource replaying the archive.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

var (
	_ RewardSink         = (*JsonlStorage)(nil)
	_ reward.EventSource = (*JsonlStorage)(nil)
)

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) Path() string {
	return s.path
}

// PutRewardBatch appends a batch of events as JSON lines.
func (s *JsonlStorage) PutRewardBatch(_ context.Context, events []model.RewardEvent) error {
	if len(events) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal reward event: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write reward event: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// PastRewardEvents replays the archive, dropping repeated (tx, log index)
// pairs left behind by a re-run sync.
func (s *JsonlStorage) PastRewardEvents(ctx context.Context, query reward.RewardQuery) ([]model.RewardEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		return nil, &apperr.QueryError{Op: "read archive", Err: err}
	}
	defer file.Close()

	seen := make(map[string]struct{})
	events := make([]model.RewardEvent, 0)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var event model.RewardEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, &apperr.QueryError{Op: "read archive", Err: fmt.Errorf("line %d: %w", line, err)}
		}
		if event.TxHash != "" {
			key := event.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		if query.Matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &apperr.QueryError{Op: "read archive", Err: err}
	}

	return events, nil
}

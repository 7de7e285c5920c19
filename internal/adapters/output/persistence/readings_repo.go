package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"hydrocore/internal/domain/model"
)

// JSONLReadingStore appends one JSON object per line. Lines are in arrival
// order, so the tail of the file holds the newest readings.
type JSONLReadingStore struct {
	filepath string
	mu       sync.RWMutex
}

func NewJSONLReadingStore(filepath string) *JSONLReadingStore {
	return &JSONLReadingStore{filepath: filepath}
}

func (s *JSONLReadingStore) Append(ctx context.Context, reading *model.Reading) error {
	line, err := json.Marshal(reading)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Recent returns up to limit readings for deviceID, newest first.
func (s *JSONLReadingStore) Recent(ctx context.Context, deviceID string, limit int) ([]*model.Reading, error) {
	if limit <= 0 {
		return []*model.Reading{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Reading{}, nil
		}
		return nil, err
	}
	defer f.Close()

	// ring of the last limit matches
	ring := make([]*model.Reading, 0, limit)
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r model.Reading
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			// torn write from a crash; skip it
			continue
		}
		if r.DeviceID != deviceID {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, &r)
			continue
		}
		ring[next] = &r
		next = (next + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Reading, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[(next+i)%len(ring)])
	}
	return out, nil
}

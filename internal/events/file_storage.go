package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/payperplay/easyservers/pkg/logger"
)

const defaultQueryLimit = 1000

// FileEventStorage appends events as JSON lines to a file. It is the history of a
// controller that has no database.
type FileEventStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileEventStorage creates the parent directory of path if needed.
func NewFileEventStorage(path string) (*FileEventStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event directory: %w", err)
	}
	return &FileEventStorage{path: path}, nil
}

// Store appends one event line
// Name identifies the backend in logs.
func (s *FileEventStorage) Name() string { return "file" }

func (s *FileEventStorage) Store(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// Query returns matching events, newest first
func (s *FileEventStorage) Query(filters EventFilters) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer f.Close()

	events := []Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			logger.Warn("Skipping malformed event line", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
			continue
		}
		if filters.Matches(e) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

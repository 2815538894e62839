package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aonescu/shopkeeper/internal/types"
)

// FileSink appends one JSON object per line to a file opened in append mode.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFile opens (or creates) the audit file at path.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Append(_ context.Context, entry types.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	// one write per entry keeps lines whole under O_APPEND
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

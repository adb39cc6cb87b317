package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/vincentbai/lynk-embed/internal/clock"
)

// LoadMemoryJar restores a jar saved with Save. A missing file yields an
// empty jar; expired cookies are dropped on first read.
func LoadMemoryJar(path string, clk clock.Clock) (*MemoryJar, error) {
	jar := NewMemoryJar(clk)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jar, nil
		}
		return nil, fmt.Errorf("read cookie jar %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &jar.cookies); err != nil {
		return nil, fmt.Errorf("parse cookie jar %s: %w", path, err)
	}
	if jar.cookies == nil {
		jar.cookies = make(map[string]storedCookie)
	}
	return jar, nil
}

// Save atomically writes the jar to path.
func (j *MemoryJar) Save(path string) error {
	j.mu.Lock()
	data, err := json.MarshalIndent(j.cookies, "", "  ")
	j.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode cookie jar: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie jar %s: %w", path, err)
	}
	return nil
}

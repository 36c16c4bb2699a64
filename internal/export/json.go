package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const jsonTimeLayout = "20060102_150405"

// JSONWriter writes each Set as an indented JSON file named after its
// creation time, e.g. rfm_20110101_120000.json.
type JSONWriter struct {
	Dir string
}

func (w JSONWriter) Write(ctx context.Context, set Set) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("rfm_%s.json", set.CreatedAt.UTC().Format(jsonTimeLayout)))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize export: %w", err)
	}
	return path, nil
}

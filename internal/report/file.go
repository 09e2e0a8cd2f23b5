package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deixis/rcpt/internal/receipt"
)

// WriteFile writes r to path atomically. Missing parent directories are
// created. The receipt is first written to a temporary file in the same
// directory and then renamed over path, so readers observe either the
// previous file or the complete new one.
func WriteFile(path string, r *receipt.Receipt) error {
	data, err := receipt.Marshal(r)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing receipt %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing receipt %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing receipt %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing receipt %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("writing receipt %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing receipt %s: %w", path, err)
	}
	committed = true
	return nil
}

package restyutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var ErrDirectoryNotEmpty = errors.New("transcript directory is not empty")

// FilesystemOutput writes each http transcript into its own file.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput prepares dir for transcripts. The directory is created
// when missing and must be empty otherwise, existing files are never touched.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemOutput{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	if len(entries) > 0 {
		return FilesystemOutput{}, fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, dir)
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0o600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

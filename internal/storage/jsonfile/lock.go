package jsonfile

import "path/filepath"

// FileLocker implements storage.Locker with an advisory lock on
// <dir>/<learner>_multipliers.json.lock.
type FileLocker struct {
	dir string
}

// NewFileLocker creates a locker rooted at the state directory.
func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{dir: dir}
}

func (l *FileLocker) lockPath(learner string) string {
	return filepath.Join(l.dir, learner+StateFileSuffix+".lock")
}

//go:build !windows

package cli

import (
	"errors"
	"os"
	"strconv"
	"syscall"

	"github.com/modelget/rget/pkg/logging"
)

// PIDFile serializes rget processes that share a lock file. A second process
// waits for the first to release the lock instead of racing it on the same
// partial files.
type PIDFile struct {
	file *os.File
	fd   int
}

func NewPIDFile(path string) (*PIDFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &PIDFile{file: file, fd: int(file.Fd())}, nil
}

// Acquire takes the lock, blocking while another process holds it, and records
// the current PID.
func (p *PIDFile) Acquire() error {
	logger := logging.GetLogger()

	err := syscall.Flock(p.fd, syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		logger.Warn().
			Str("pid_file", p.file.Name()).
			Msg("Another rget process holds the lock, use 'rget multifile' to download several files at once. Waiting")
		err = syscall.Flock(p.fd, syscall.LOCK_EX)
	}
	if err != nil {
		return err
	}
	return p.run(
		func() error { return p.file.Truncate(0) },
		func() error { _, err := p.file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); return err },
		p.file.Sync,
	)
}

// Release drops the lock and removes the file.
func (p *PIDFile) Release() error {
	return p.run(
		func() error { return syscall.Flock(p.fd, syscall.LOCK_UN) },
		p.file.Close,
		func() error { return os.Remove(p.file.Name()) },
	)
}

func (p *PIDFile) run(funcs ...func() error) error {
	for _, fn := range funcs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

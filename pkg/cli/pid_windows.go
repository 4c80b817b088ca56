//go:build windows

package cli

import (
	"os"
	"strconv"
)

// PIDFile records the PID only. Windows has no flock, so concurrent rget
// processes are not serialized.
type PIDFile struct {
	file *os.File
}

func NewPIDFile(path string) (*PIDFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &PIDFile{file: file}, nil
}

func (p *PIDFile) Acquire() error {
	_, err := p.file.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

func (p *PIDFile) Release() error {
	if err := p.file.Close(); err != nil {
		return err
	}
	return os.Remove(p.file.Name())
}

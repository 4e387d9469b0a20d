//go:build !linux || !(amd64 || arm64)

package shm

import "errors"

// Attach доступен только на 64-битном Linux
func Attach(unit int) (*Segment, error) {
	return nil, errors.New("shm: SysV shared memory not supported on this platform")
}

//go:build linux && (amd64 || arm64)

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Attach подключает (и при необходимости создаёт) сегмент юнита unit.
func Attach(unit int) (*Segment, error) {
	if unit < 0 || unit >= Units {
		return nil, fmt.Errorf("shm: unit %d out of range 0..%d", unit, Units-1)
	}
	id, err := unix.SysvShmGet(BaseKey+unit, Size, unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, fmt.Errorf("shmget %#x: %w", BaseKey+unit, err)
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat: %w", err)
	}
	if len(mem) < Size {
		_ = unix.SysvShmDetach(mem)
		return nil, fmt.Errorf("shm: segment too small: %d", len(mem))
	}
	s := NewSegment((*Time)(unsafe.Pointer(&mem[0])))
	s.detach = func() error { return unix.SysvShmDetach(mem) }
	return s, nil
}

//go:build tinygo

package device

import "machine"

// MachineFlash — калибровка в начале области данных flash микроконтроллера.
type MachineFlash struct {
	Offset int64
}

func (f MachineFlash) Read(p []byte) error {
	_, err := machine.Flash.ReadAt(p, f.Offset)
	return err
}

func (f MachineFlash) Erase() error {
	return machine.Flash.EraseBlocks(f.Offset/machine.Flash.EraseBlockSize(), 1)
}

func (f MachineFlash) Program(off int, halfword uint16) error {
	_, err := machine.Flash.WriteAt([]byte{byte(halfword), byte(halfword >> 8)}, f.Offset+int64(off))
	return err
}

package device

import (
	"errors"
	"fmt"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

// Flash — страница flash, отведённая под калибровку TCXO.
// Программирование — полусловами; запись возможна только в стёртые ячейки.
type Flash interface {
	Read(p []byte) error
	Erase() error
	Program(off int, halfword uint16) error
}

// ErrNotErased — попытка запрограммировать нестёртую ячейку
var ErrNotErased = errors.New("flash: cell not erased")

// loadCalibration копирует сохранённые байты 0..19 в страницу 3.
// Стёртая страница (все 0xff) означает «калибровки нет». Вызывается внутри критической секции.
func (d *Device) loadCalibration() error {
	var stored [regmap.TCXOWriteLength]byte
	if err := d.flash.Read(stored[:]); err != nil {
		return fmt.Errorf("flash read: %w", err)
	}
	if erased(stored[:]) {
		return nil
	}
	buf := d.tcxo.Encode()
	copy(buf[:], stored[:])
	buf[regmap.OffsetSave] = 0
	buf[regmap.OffsetSaveStatus] = byte(regmap.SaveNone)
	return d.tcxo.Decode(buf[:])
}

// saveCalibration стирает страницу и программирует байты 0..19 страницы 3.
// Результат пишется в save_status; при ошибке стирания программирование не выполняется,
// при ошибке записи оставшиеся полуслова не пишутся.
func (d *Device) saveCalibration() {
	s := disableInterrupts()
	d.tcxo.Save = 0
	img := d.tcxo.Encode()
	restoreInterrupts(s)

	status := d.commit(img[:regmap.TCXOWriteLength])

	s = disableInterrupts()
	d.tcxo.SaveStatus = status
	restoreInterrupts(s)
}

func (d *Device) commit(data []byte) regmap.SaveStatus {
	if d.flash == nil {
		return regmap.SaveEraseFail
	}
	if err := d.flash.Erase(); err != nil {
		return regmap.SaveEraseFail
	}
	for i := 0; i+1 < len(data); i += 2 {
		hw := uint16(data[i]) | uint16(data[i+1])<<8
		if err := d.flash.Program(i, hw); err != nil {
			return regmap.SaveWriteFail
		}
	}
	return regmap.SaveOK
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}

// MemFlash — flash в памяти с внедрением отказов.
type MemFlash struct {
	Data       [regmap.TCXOWriteLength]byte
	FailErase  bool
	FailAt     int // смещение полуслова, на котором программирование откажет; <0 — без отказов
	Erases     int
	Programmed int
}

// NewMemFlash возвращает стёртую flash без отказов
func NewMemFlash() *MemFlash {
	f := &MemFlash{FailAt: -1}
	for i := range f.Data {
		f.Data[i] = 0xff
	}
	return f
}

func (f *MemFlash) Read(p []byte) error {
	copy(p, f.Data[:])
	return nil
}

func (f *MemFlash) Erase() error {
	if f.FailErase {
		return errors.New("flash: erase failed")
	}
	f.Erases++
	for i := range f.Data {
		f.Data[i] = 0xff
	}
	return nil
}

func (f *MemFlash) Program(off int, halfword uint16) error {
	if off == f.FailAt {
		return fmt.Errorf("flash: program at %d failed", off)
	}
	if off < 0 || off+2 > len(f.Data) {
		return fmt.Errorf("flash: offset %d out of range", off)
	}
	if f.Data[off] != 0xff || f.Data[off+1] != 0xff {
		return ErrNotErased
	}
	f.Data[off] = byte(halfword)
	f.Data[off+1] = byte(halfword >> 8)
	f.Programmed++
	return nil
}

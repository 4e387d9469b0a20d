package device

import (
	"errors"
	"testing"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

func calibrationWrite(c regmap.Calibration) []byte {
	c.Save = 1
	img := c.Encode()
	return append([]byte{0}, img[:regmap.TCXOWriteLength]...)
}

func readCalibration(t *testing.T, l *Loopback) regmap.Calibration {
	t.Helper()
	buf := selectAndRead(t, l, byte(regmap.PageTCXO))
	var c regmap.Calibration
	if err := c.Decode(buf[:]); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSaveCalibration(t *testing.T) {
	flash := NewMemFlash()
	d, _, l := newTestDevice(t, flash)
	want := regmap.Calibration{A: 20.465, B: -0.12, C: 77.5, D: 0.0031, MaxTemp: 110, MinTemp: -5, RMSE: 12}

	_ = l.Tx([]byte{regmap.OffsetPage, byte(regmap.PageTCXO)}, nil)
	if err := l.Tx(calibrationWrite(want), nil); err != nil {
		t.Fatal(err)
	}
	got := readCalibration(t, l)
	if got.SaveStatus != regmap.SaveOK || got.Save != 0 {
		t.Fatalf("save %d status %v", got.Save, got.SaveStatus)
	}
	if got.A != want.A || got.D != want.D || got.MinTemp != want.MinTemp || got.RMSE != want.RMSE {
		t.Errorf("страница 3: %+v", got)
	}
	if flash.Erases != 1 || flash.Programmed != regmap.TCXOWriteLength/2 {
		t.Errorf("erase %d, program %d", flash.Erases, flash.Programmed)
	}

	// после перезапуска калибровка загружается из flash, статус сброшен
	d2 := New(&fakeHW{}, flash)
	if err := d2.Start(Factory{}); err != nil {
		t.Fatal(err)
	}
	c := d2.Calibration()
	if c.A != want.A || c.B != want.B || c.C != want.C || c.MaxTemp != want.MaxTemp || c.Save != 0 || c.SaveStatus != regmap.SaveNone {
		t.Errorf("после загрузки: %+v", c)
	}
	_ = d
}

func TestSaveEraseFailure(t *testing.T) {
	flash := NewMemFlash()
	copy(flash.Data[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	before := flash.Data
	d, _, l := newTestDevice(t, flash)
	flash.FailErase = true

	_ = l.Tx([]byte{regmap.OffsetPage, byte(regmap.PageTCXO)}, nil)
	_ = l.Tx(calibrationWrite(regmap.Calibration{A: 1, B: 2, C: 3, D: 4}), nil)

	if got := d.Calibration().SaveStatus; got != regmap.SaveEraseFail {
		t.Errorf("статус %v, ожидали erase fail", got)
	}
	if flash.Programmed != 0 {
		t.Errorf("после ошибки стирания программирование недопустимо: %d", flash.Programmed)
	}
	if flash.Data != before {
		t.Error("содержимое flash изменилось")
	}
}

func TestSaveWriteFailure(t *testing.T) {
	flash := NewMemFlash()
	d, _, l := newTestDevice(t, flash)
	flash.FailAt = 4

	_ = l.Tx([]byte{regmap.OffsetPage, byte(regmap.PageTCXO)}, nil)
	_ = l.Tx(calibrationWrite(regmap.Calibration{A: 1}), nil)

	if got := d.Calibration().SaveStatus; got != regmap.SaveWriteFail {
		t.Errorf("статус %v, ожидали write fail", got)
	}
	if flash.Programmed != 2 {
		t.Errorf("после отказа оставшиеся полуслова не пишутся: записано %d", flash.Programmed)
	}
}

func TestSaveOnlyOnTCXOPage(t *testing.T) {
	flash := NewMemFlash()
	d, _, l := newTestDevice(t, flash)
	// страница 1 выбрана: байт 19 — младший байт captured[2] только для чтения
	_ = l.Tx([]byte{regmap.OffsetSave, 1}, nil)
	if flash.Erases != 0 || d.Calibration().Save != 0 {
		t.Error("сохранение не должно запускаться вне страницы 3")
	}
}

func TestMemFlashRequiresErase(t *testing.T) {
	f := NewMemFlash()
	if err := f.Program(0, 0x1234); err != nil {
		t.Fatal(err)
	}
	if err := f.Program(0, 0x5678); !errors.Is(err, ErrNotErased) {
		t.Errorf("повторная запись без стирания: %v", err)
	}
	if err := f.Program(regmap.TCXOWriteLength-1, 1); err == nil {
		t.Error("выход за страницу должен быть ошибкой")
	}
}

func TestStartErasedFlash(t *testing.T) {
	d, _, _ := newTestDevice(t, NewMemFlash())
	if c := d.Calibration(); !c.IsZero() {
		t.Errorf("стёртая flash: %+v", c)
	}
}

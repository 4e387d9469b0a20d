package regclient

import (
	"errors"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/device"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/i2cbus"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

type fakeHW struct {
	ms        uint32
	low, high uint16
}

func (h *fakeHW) Millis() uint32             { return h.ms }
func (h *fakeHW) Counters() (uint16, uint16) { return h.low, h.high }

func newTestClient(t *testing.T) (*Client, *device.Device, *fakeHW, *device.Loopback) {
	t.Helper()
	hw := &fakeHW{ms: 5000, low: 0x1111, high: 0x22}
	d := device.New(hw, device.NewMemFlash())
	if err := d.Start(device.SimFactory); err != nil {
		t.Fatal(err)
	}
	l := &device.Loopback{Dev: d}
	c := New(i2cbus.New(l))
	var tick time.Time
	c.Now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return c, d, hw, l
}

func TestReadTelemetry(t *testing.T) {
	c, d, _, _ := newTestClient(t)
	d.Capture(0, 777)
	d.SampleADC(900, 1700, 1520)
	r, err := c.ReadTelemetry()
	if err != nil {
		t.Fatal(err)
	}
	if r.Telemetry.Captured[0] != 777 || r.Telemetry.TickNow != 5000 {
		t.Errorf("страница 1: %+v", r.Telemetry)
	}
	if r.Analog.VrefIntCal != device.SimFactory.VrefIntCal || r.Analog.ExternalTemp != 900 {
		t.Errorf("страница 2: %+v", r.Analog)
	}
	if r.RTT != time.Millisecond {
		t.Errorf("RTT %v", r.RTT)
	}
}

// wrongVersion подменяет байт версии в ответах устройства
type wrongVersion struct{ *device.Loopback }

func (w wrongVersion) Tx(wr, r []byte) error {
	err := w.Loopback.Tx(wr, r)
	if len(r) == regmap.PageSize && r[regmap.OffsetPage] == byte(regmap.PageTelemetry) {
		r[30] = 9
	}
	return err
}

func TestVersionMismatch(t *testing.T) {
	c, _, _, l := newTestClient(t)
	c.Dev.Bus = wrongVersion{l}
	_, err := c.ReadTelemetry()
	if !errors.Is(err, ErrVersion) {
		t.Errorf("ожидали ErrVersion, получили %v", err)
	}
}

// stuckPage всегда отвечает страницей 1
type stuckPage struct{ *device.Loopback }

func (s stuckPage) Tx(w, r []byte) error {
	if len(w) == 2 && w[0] == regmap.OffsetPage {
		w = []byte{regmap.OffsetPage, 0}
	}
	return s.Loopback.Tx(w, r)
}

func TestWrongPage(t *testing.T) {
	c, _, _, l := newTestClient(t)
	c.Dev.Bus = stuckPage{l}
	if _, err := c.ReadCalibration(); !errors.Is(err, ErrWrongPage) {
		t.Errorf("ожидали ErrWrongPage, получили %v", err)
	}
}

func TestWriteCalibration(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	want := regmap.Calibration{A: 20.465, B: 0.25, C: 80, D: -0.001, MaxTemp: 100, MinTemp: 40, RMSE: 9}
	if err := c.WriteCalibration(want); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadCalibration()
	if err != nil {
		t.Fatal(err)
	}
	if got.SaveStatus != regmap.SaveOK {
		t.Errorf("save_status %v", got.SaveStatus)
	}
	got.SaveStatus, got.Selector = 0, 0
	if got != want {
		t.Errorf("калибровка: %+v, ожидали %+v", got, want)
	}
}

func TestReadStamp(t *testing.T) {
	c, _, hw, _ := newTestClient(t)
	hw.low, hw.high = 0x0005, 0x0300
	s, err := c.ReadStamp()
	if err != nil {
		t.Fatal(err)
	}
	if s.Raw.Ticks() != 0x03000005 {
		t.Errorf("raw %#x", s.Raw.Ticks())
	}
	if !s.End.After(s.Start) {
		t.Error("время выбора страницы")
	}
	if s.Telemetry.Version != regmap.Version {
		t.Errorf("страница 1 после страницы 4: %+v", s.Telemetry)
	}
}

func TestSetSourceHz(t *testing.T) {
	c, d, _, _ := newTestClient(t)
	if err := c.SetSourceHz(500); err != nil {
		t.Fatal(err)
	}
	if d.Telemetry().SourceHz != 500 {
		t.Errorf("source_HZ %d", d.Telemetry().SourceHz)
	}
}

func TestTransientBusError(t *testing.T) {
	c, _, _, l := newTestClient(t)
	c.Dev.RetryDelay = 0
	l.FailNext = 1
	if _, err := c.ReadRawCounters(); err != nil {
		t.Errorf("одна ошибка шины должна переживаться повтором: %v", err)
	}
	l.FailNext = 2
	if _, err := c.ReadRawCounters(); !errors.Is(err, device.ErrCollision) {
		t.Errorf("две ошибки подряд: %v", err)
	}
}

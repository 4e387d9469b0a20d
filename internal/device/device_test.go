package device

import (
	"bytes"
	"testing"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

type fakeHW struct {
	ms        uint32
	low, high uint16
}

func (h *fakeHW) Millis() uint32             { return h.ms }
func (h *fakeHW) Counters() (uint16, uint16) { return h.low, h.high }

func newTestDevice(t *testing.T, flash Flash) (*Device, *fakeHW, *Loopback) {
	t.Helper()
	hw := &fakeHW{ms: 1000, low: 100, high: 2}
	d := New(hw, flash)
	if err := d.Start(Factory{TSCal1: 1750, TSCal2: 1330, VrefIntCal: 1520}); err != nil {
		t.Fatal(err)
	}
	return d, hw, &Loopback{Dev: d}
}

func selectAndRead(t *testing.T, l *Loopback, sel byte) [regmap.PageSize]byte {
	t.Helper()
	var buf [regmap.PageSize]byte
	if err := l.Tx([]byte{regmap.OffsetPage, sel}, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.Tx(nil, buf[:]); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestSelectorReadBack(t *testing.T) {
	_, _, l := newTestDevice(t, nil)
	for sel := 0; sel < 256; sel++ {
		want := byte(sel)
		if sel > 3 {
			want = byte(regmap.PageTelemetry)
		}
		buf := selectAndRead(t, l, byte(sel))
		if buf[regmap.OffsetPage] != want {
			t.Fatalf("селектор %d: прочитали %d, ожидали %d", sel, buf[regmap.OffsetPage], want)
		}
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	d, _, l := newTestDevice(t, nil)
	d.Capture(0, 1234)
	for _, sel := range []byte{0, 1, 2, 3} {
		a := selectAndRead(t, l, sel)
		b := selectAndRead(t, l, sel)
		if a != b {
			t.Errorf("страница %d: снимки различаются\n% x\n% x", sel, a, b)
		}
	}
}

func TestSnapshotTakenAtSelect(t *testing.T) {
	d, hw, l := newTestDevice(t, nil)
	before := selectAndRead(t, l, 0)

	hw.ms = 2000
	hw.low, hw.high = 500, 3
	d.Capture(0, 400)

	var again [regmap.PageSize]byte
	_ = l.Tx(nil, again[:])
	if again != before {
		t.Error("чтение без выбора страницы должно вернуть прежний снимок")
	}

	var tel regmap.Telemetry
	buf := selectAndRead(t, l, 0)
	_ = tel.Decode(buf[:])
	if tel.TickNow != 2000 || tel.TickCapture != 2000 {
		t.Errorf("tick_now %d, tick_capture %d", tel.TickNow, tel.TickCapture)
	}
	if tel.Captured[0] != 400 || tel.LowAtIRQ[0] != 500 || tel.HighAtIRQ[0] != 3 {
		t.Errorf("канал 1: %+v", tel)
	}
	if tel.Version != regmap.Version {
		t.Errorf("version %d", tel.Version)
	}
}

func TestRawPageRefreshedOnSelect(t *testing.T) {
	_, hw, l := newTestDevice(t, nil)
	hw.low, hw.high = 0xbeef, 0x0102
	buf := selectAndRead(t, l, byte(regmap.PageRaw))
	var r regmap.RawCounters
	_ = r.Decode(buf[:])
	if r.Ticks() != 0x0102beef {
		t.Errorf("сырые счётчики %#x", r.Ticks())
	}
}

func TestFillerAfterPage(t *testing.T) {
	_, _, l := newTestDevice(t, nil)
	page := selectAndRead(t, l, 0)
	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = 0xee
	}
	if err := l.Tx(nil, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:regmap.PageSize], page[:]) {
		t.Error("первые 32 байта должны совпадать со снимком")
	}
	if !bytes.Equal(buf[regmap.PageSize:], make([]byte, 8)) {
		t.Errorf("заполнитель: % x", buf[regmap.PageSize:])
	}
}

func TestSourceHz(t *testing.T) {
	d, hw, l := newTestDevice(t, nil)
	if err := l.Tx([]byte{26, 2, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if got := d.Telemetry().SourceHz; got != 2 {
		t.Fatalf("source_HZ = %d", got)
	}
	d.Capture(0, 10) // первый фронт: перезагрузка счётчика ещё со значением по умолчанию
	hw.ms = 3000
	d.Capture(0, 20)
	if d.Telemetry().Captured[0] != 10 {
		t.Errorf("второй фронт при source_HZ=2 не должен защёлкиваться: %d", d.Telemetry().Captured[0])
	}
	d.Capture(0, 30)
	if d.Telemetry().Captured[0] != 30 || d.Telemetry().TickCapture != 3000 {
		t.Errorf("третий фронт: %+v", d.Telemetry())
	}

	_ = l.Tx([]byte{26, 0, 0}, nil)
	d.Capture(0, 40)
	d.Capture(0, 50)
	if d.Telemetry().SourceHz != DefaultSourceHz {
		t.Errorf("0 должен восстанавливать значение по умолчанию: %d", d.Telemetry().SourceHz)
	}
}

func TestSecondaryChannels(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)
	d.Capture(1, 7)
	d.Capture(1, 8)
	d.Capture(2, 9)
	d.Capture(5, 1)
	tel := d.Telemetry()
	if tel.Ch2Count != 2 || tel.Ch3Count != 1 || tel.Captured[1] != 8 || tel.Captured[2] != 9 {
		t.Errorf("%+v", tel)
	}
}

func TestReadOnlyIgnored(t *testing.T) {
	d, _, l := newTestDevice(t, nil)
	before := d.Telemetry()
	_ = l.Tx([]byte{0, 1, 2, 3, 4}, nil)
	_ = l.Tx([]byte{40, 1}, nil)
	if d.Telemetry() != before {
		t.Error("запись в поля только для чтения должна игнорироваться")
	}
}

func TestADCSkippedWhileReading(t *testing.T) {
	d, hw, _ := newTestDevice(t, nil)
	d.SampleADC(900, 1700, 1500)
	hw.ms = 1100
	d.SampleADC(1000, 1800, 1600)
	a := d.analog
	if a.ExternalTemp != 950 || a.InternalTemp != 1750 || a.InternalVref != 1550 || a.TickADC != 1100 {
		t.Fatalf("среднее двух отсчётов: %+v", a)
	}

	d.HandleBus(Event{Kind: AddrMatch, Dir: HostRead})
	hw.ms = 1200
	d.SampleADC(0, 0, 0)
	if d.analog.TickADC != 1100 {
		t.Error("во время чтения страница 2 не публикуется")
	}
	d.HandleBus(Event{Kind: BusFault, Code: AckFailure})
	d.HandleBus(Event{Kind: ListenComplete})
	d.SampleADC(0, 0, 0)
	if d.analog.TickADC != 1200 || d.analog.ExternalTemp != 475 {
		t.Errorf("после чтения: %+v", d.analog)
	}
}

func TestShowCounters(t *testing.T) {
	d, _, l := newTestDevice(t, nil)
	_ = l.Tx([]byte{regmap.OffsetPage, 0}, nil)
	var out bytes.Buffer
	if err := d.ShowCounters(&out); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "addr 1 data_rcv 1 rxcplt 2 listen 1 \n" {
		t.Errorf("ShowCounters = %q", got)
	}
	out.Reset()
	_ = d.ShowCounters(&out)
	if out.Len() != 0 {
		t.Errorf("счётчики должны обнуляться: %q", out.String())
	}
}

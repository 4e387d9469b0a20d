package cycles

import (
	"testing"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

func page(high, captured, low [regmap.Channels]uint16) regmap.Telemetry {
	return regmap.Telemetry{HighAtIRQ: high, Captured: captured, LowAtIRQ: low}
}

func TestThreshold(t *testing.T) {
	r := New(DefaultExpected, DefaultTolerancePPM)
	if r.Tolerance != 24000 || r.Threshold() != 41536 {
		t.Errorf("tolerance %d threshold %d", r.Tolerance, r.Threshold())
	}
}

func TestFirstSampleHasNoHistory(t *testing.T) {
	r := New(0, 0)
	_, ok := r.Update(page([3]uint16{1, 1, 1}, [3]uint16{5, 6, 7}, [3]uint16{10, 10, 10}))
	if ok {
		t.Fatal("первый отсчёт не должен давать смещение")
	}
	if !r.HasHistory() {
		t.Fatal("история должна запоминаться")
	}
	r.Reset()
	if _, ok := r.Update(page([3]uint16{}, [3]uint16{}, [3]uint16{})); ok {
		t.Error("после Reset снова нет истории")
	}
}

func TestWrapBetweenCaptureAndIRQ(t *testing.T) {
	r := New(DefaultExpected, DefaultTolerancePPM)
	// истинные такты: 103238, затем 103238 + 48000000 + 50 = 48103288 (= 733·65536 + 65400)
	prev := uint16(103238 - 65536)
	r.Update(page([3]uint16{1, 1, 1}, [3]uint16{prev, prev, prev}, [3]uint16{prev + 90, prev + 90, prev + 90}))

	// младший счётчик переполнился до прерывания: low_at_irq=30 < captured, старший уже 734
	out, ok := r.Update(page([3]uint16{734, 733, 734}, [3]uint16{65400, 65400, 65400}, [3]uint16{30, 65450, 65420}))
	if !ok {
		t.Fatal("нет истории")
	}
	if out[0].Wrap != WrapAfterCapture || out[0].Ticks != 48103288 || out[0].Diff != 50 {
		t.Errorf("канал 1: %+v", out[0])
	}
	// у канала 2 старший счётчик не увеличился: коррекция не нужна
	if out[1].Wrap != NoWrap || out[1].Ticks != 48103288 || out[1].Diff != 50 {
		t.Errorf("канал 2: %+v", out[1])
	}
	// у канала 3 захват у границы (65400 > 65300), старший счётчик уже увеличен
	if out[2].Wrap != WrapNearRollover || out[2].Ticks != 48103288 {
		t.Errorf("канал 3: %+v", out[2])
	}
	if f := Flags(out); f != 1|2<<4 {
		t.Errorf("Flags = %b", f)
	}
}

func TestNoCorrectionInsideBand(t *testing.T) {
	r := New(DefaultExpected, DefaultTolerancePPM)
	// captured > low_at_irq, но приращение в пределах допуска: не перенос
	s := r.Check(1000+DefaultExpected+23000, 1000, 500, 100)
	if s.Wrap != NoWrap || s.Diff != 23000 {
		t.Errorf("%+v", s)
	}
	// граница: diff = 65536 − 24000 уже считается переносом
	s = r.Check(1000+DefaultExpected+41536, 1000, 500, 100)
	if s.Wrap != WrapAfterCapture || s.Diff != 41536-Rollover {
		t.Errorf("%+v", s)
	}
	// captured == 65300 не считается «у границы»
	s = r.Check(1000+DefaultExpected+Rollover, 1000, 65300, 65310)
	if s.Wrap != NoWrap {
		t.Errorf("%+v", s)
	}
}

func TestCorrectedForwardDelta(t *testing.T) {
	r := New(DefaultExpected, DefaultTolerancePPM)
	// кажущееся приращение на один оборот больше ожидаемого → после коррекции в пределах ±500 ppm
	prev := uint32(65000)
	apparent := prev + DefaultExpected + Rollover - 100
	s := r.Check(apparent, prev, 65500, 20)
	if s.Ticks != apparent-Rollover {
		t.Fatalf("ticks %d", s.Ticks)
	}
	if s.Diff < -r.Tolerance || s.Diff > r.Tolerance {
		t.Errorf("после коррекции diff %d вне допуска", s.Diff)
	}
}

func TestCombine(t *testing.T) {
	if Combine(0x0102, 0xfffe) != 0x0102fffe {
		t.Error("Combine")
	}
}

// Package cycles восстанавливает 32-битные счётчики тактов из 16-битных захватов
// и обнаруживает переполнение младшего счётчика между capture и прерыванием.
package cycles

import "github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"

// Параметры по умолчанию
const (
	DefaultExpected     = 48000000 // тактов за интервал (1 с при 48 МГц)
	DefaultTolerancePPM = 500
	Rollover            = 1 << 16
	// NearRollover — захват выше Rollover−NearRollover проверяется на перенос даже при captured <= low_at_irq
	NearRollover = 236
)

// Wrap — причина коррекции переноса
type Wrap uint8

const (
	NoWrap Wrap = iota
	// WrapAfterCapture — captured > low_at_irq: младший счётчик переполнился между capture и прерыванием
	WrapAfterCapture
	// WrapNearRollover — captured у самой границы переполнения
	WrapNearRollover
)

// Combine склеивает старший счётчик в момент прерывания и захваченный младший.
func Combine(high, captured uint16) uint32 {
	return uint32(high)<<16 | uint32(captured)
}

// Sample — результат по одному каналу
type Sample struct {
	Ticks uint32 // скорректированный 32-битный счётчик
	Diff  int32  // Ticks − previous − expected, тактов
	Wrap  Wrap
}

// Reconstructor хранит предыдущие значения по каналам.
type Reconstructor struct {
	Expected  uint32
	Tolerance int32 // допуск в тактах; больше него отклонение считается переносом

	prev    [regmap.Channels]uint32
	history bool
}

// New создаёт реконструктор для частоты expected (тактов за интервал) и допуска tolerancePPM.
func New(expected uint32, tolerancePPM float64) *Reconstructor {
	if expected == 0 {
		expected = DefaultExpected
	}
	if tolerancePPM <= 0 {
		tolerancePPM = DefaultTolerancePPM
	}
	tol := int32(float64(expected) * tolerancePPM * 1e-6)
	return &Reconstructor{Expected: expected, Tolerance: tol}
}

// Threshold — порог diff, начиная с которого при подозрении на перенос вычитается один оборот
func (r *Reconstructor) Threshold() int32 {
	return Rollover - r.Tolerance
}

// Check корректирует один канал относительно previous.
func (r *Reconstructor) Check(ticks, previous uint32, captured, lowAtIRQ uint16) Sample {
	s := Sample{Ticks: ticks, Diff: int32(ticks - previous - r.Expected)}
	switch {
	case captured > lowAtIRQ:
		s.Wrap = WrapAfterCapture
	case captured > Rollover-NearRollover:
		s.Wrap = WrapNearRollover
	default:
		return s
	}
	if s.Diff >= r.Threshold() {
		s.Ticks -= Rollover
		s.Diff -= Rollover
		return s
	}
	s.Wrap = NoWrap
	return s
}

// Update обрабатывает страницу 1. Без истории (первый отсчёт после Reset) возвращает ok=false,
// только запоминая значения.
func (r *Reconstructor) Update(t regmap.Telemetry) (out [regmap.Channels]Sample, ok bool) {
	var ticks [regmap.Channels]uint32
	for i := range ticks {
		ticks[i] = Combine(t.HighAtIRQ[i], t.Captured[i])
	}
	if r.history {
		for i := range out {
			out[i] = r.Check(ticks[i], r.prev[i], t.Captured[i], t.LowAtIRQ[i])
			ticks[i] = out[i].Ticks
		}
		ok = true
	} else {
		for i := range out {
			out[i].Ticks = ticks[i]
		}
	}
	r.prev = ticks
	r.history = true
	return out, ok
}

// Reset забывает историю (пропущенный цикл)
func (r *Reconstructor) Reset() {
	r.history = false
	r.prev = [regmap.Channels]uint32{}
}

// HasHistory — есть ли предыдущий отсчёт
func (r *Reconstructor) HasHistory() bool { return r.history }

// Flags упаковывает причины переноса трёх каналов по два бита: ch1 | ch2<<2 | ch3<<4.
func Flags(s [regmap.Channels]Sample) uint8 {
	var f uint8
	for i := range s {
		f |= uint8(s[i].Wrap) << (2 * i)
	}
	return f
}

// Package estimator вычисляет дрейф частоты (ppm) по посекундным смещениям захватов:
// нормализация по «абсолютному» каналу, термокомпенсация, окна 16/64/128 с,
// вычитание базового ppm и ограничение публикуемого значения.
package estimator

import (
	"math"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/averager"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/cycles"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/timeutil"
)

// PlausiblePPM — модуль ppm, начиная с которого значение считается мусором
const PlausiblePPM = 500

// Config — параметры оценки
type Config struct {
	Expected        uint32  // тактов за интервал
	AveragingCycles int     // слотов истории (окно до AveragingCycles−1 с)
	Windows         []int   // окна, с; последнее — публикуемое
	AbsoluteChannel int     // индекс канала-эталона
	AbsoluteBandPPM float64 // допуск эталона; вне его используется FallbackOffsetNs
	FallbackNs      float64 // смещение канала 1 относительно эталона по умолчанию, нс/с
	BaselinePPM     float64 // базовый ppm до накопления BaselineSamples
	BaselineSamples int     // 0 — базовый ppm фиксирован
	PublishBandPPM  float64 // |ppm − baseline| больше этого не публикуется
	TolerancePPM    float64 // |отклонение канала 1| больше этого: отсчёт отбрасывается, окно сбрасывается
}

// DefaultConfig — значения, подобранные на плате
func DefaultConfig() Config {
	return Config{
		Expected:        cycles.DefaultExpected,
		AveragingCycles: 129,
		Windows:         []int{16, 64, 128},
		AbsoluteChannel: 1,
		AbsoluteBandPPM: 10,
		FallbackNs:      3271,
		BaselinePPM:     20.465,
		BaselineSamples: 3600,
		PublishBandPPM:  10,
		TolerancePPM:    cycles.DefaultTolerancePPM,
	}
}

// Window — ppm за одно окно
type Window struct {
	Seconds int
	PPM     float64
	OK      bool
}

// Result — итог одного цикла
type Result struct {
	OffsetNs   [regmap.Channels]float64 // после нормализации по эталону
	Degraded   bool                     // эталон вне допуска, использован FallbackNs
	Discarded  bool                     // канал 1 вне допуска после коррекции переноса; окно сброшено
	TempCompNs float64
	Points     int
	Cumulative float64 // накопленное смещение, нс
	Windows    []Window
	Baseline   float64
	Relative   float64 // ppm − baseline для последнего окна
	Publish    bool
}

// Estimator — состояние оценки дрейфа.
type Estimator struct {
	cfg      Config
	history  *OffsetHistory
	baseline *averager.Window[float64]
	model    regmap.Calibration
}

// New создаёт оценщик
func New(cfg Config) *Estimator {
	d := DefaultConfig()
	if cfg.Expected == 0 {
		cfg.Expected = d.Expected
	}
	if cfg.AveragingCycles < 2 {
		cfg.AveragingCycles = d.AveragingCycles
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = d.Windows
	}
	if cfg.TolerancePPM <= 0 {
		cfg.TolerancePPM = d.TolerancePPM
	}
	e := &Estimator{cfg: cfg, history: NewOffsetHistory(cfg.AveragingCycles)}
	if cfg.BaselineSamples > 0 {
		e.baseline = averager.NewWindow[float64](cfg.BaselineSamples)
	}
	return e
}

// SetModel задаёт модель термокомпенсации (страница 3); нулевая модель отключает компенсацию.
func (e *Estimator) SetModel(c regmap.Calibration) { e.model = c }

// History — буфер смещений
func (e *Estimator) History() *OffsetHistory { return e.history }

// Reset — пропущенный цикл: окно начинается заново. Базовый ppm сохраняется.
func (e *Estimator) Reset() { e.history.Reset() }

// Baseline — текущий базовый ppm
func (e *Estimator) Baseline() float64 {
	if e.baseline != nil && e.baseline.Full() {
		return e.baseline.Mean()
	}
	return e.cfg.BaselinePPM
}

// TempCompNs — поправка модели при температуре tempF, нс за секунду (ppb).
func (e *Estimator) TempCompNs(tempF float64) float64 {
	if e.model.IsZero() {
		return 0
	}
	return e.model.PPM(tempF) * 1000
}

// Process обрабатывает один принятый цикл. tempF учитывается, если haveTemp.
func (e *Estimator) Process(s [regmap.Channels]cycles.Sample, tempF float64, haveTemp bool) Result {
	var r Result
	for i := range s {
		r.OffsetNs[i] = timeutil.TicksToNanos(int64(s[i].Diff), e.cfg.Expected)
	}
	r.Windows = make([]Window, len(e.cfg.Windows))
	for i, sec := range e.cfg.Windows {
		r.Windows[i].Seconds = sec
	}
	r.Baseline = e.Baseline()
	if math.Abs(r.OffsetNs[0]) > e.cfg.TolerancePPM*1000 {
		r.Discarded = true
		r.Degraded = true
		e.history.Reset()
		return r
	}

	a := e.cfg.AbsoluteChannel
	band := e.cfg.AbsoluteBandPPM * 1000
	if a >= 0 && a < regmap.Channels && math.Abs(r.OffsetNs[a]) < band {
		ref := r.OffsetNs[a]
		for i := range r.OffsetNs {
			if i != a {
				r.OffsetNs[i] -= ref
			}
		}
	} else {
		r.Degraded = true
		for i := range r.OffsetNs {
			if i != a {
				r.OffsetNs[i] -= e.cfg.FallbackNs
			}
		}
	}

	if haveTemp {
		r.TempCompNs = e.TempCompNs(tempF)
	}
	e.history.Add(r.OffsetNs[0] - r.TempCompNs)
	r.Points = e.history.Points()
	r.Cumulative = e.history.Cumulative()

	for i, sec := range e.cfg.Windows {
		ppm, ok := e.history.PPM(sec)
		r.Windows[i] = Window{Seconds: sec, PPM: ppm, OK: ok}
	}

	last := r.Windows[len(r.Windows)-1]
	if last.OK {
		r.Relative = last.PPM - r.Baseline
		r.Publish = math.Abs(r.Relative) <= e.cfg.PublishBandPPM
		if e.baseline != nil && math.Abs(last.PPM) < PlausiblePPM {
			e.baseline.Add(last.PPM)
		}
	}
	return r
}

//go:build !tinygo

package device

import (
	"context"
	"math"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

// SimConfig — параметры эмулятора платы
type SimConfig struct {
	Hz        uint32  // частота счётчиков
	LocalPPM  float64 // ошибка генератора счётчиков
	SignalPPM float64 // ошибка источника канала 1 относительно эталона (канал 2)
	TempC     float64 // температура кристалла и внешнего датчика
}

// DefaultSimConfig — типичная плата при комнатной температуре
func DefaultSimConfig() SimConfig {
	return SimConfig{Hz: 48000000, LocalPPM: 1.5, SignalPPM: 20.465, TempC: 25}
}

// SimFactory — заводские константы эмулируемого STM32F0
var SimFactory = Factory{TSCal1: 1750, TSCal2: 1330, VrefIntCal: 1520}

// Sim — эмулятор платы: реальное время вместо таймеров, фронты PPS по трём каналам,
// АЦП по заданной температуре.
type Sim struct {
	Dev   *Device
	Flash *MemFlash

	cfg   SimConfig
	start time.Time
}

// NewSim создаёт и запускает модель устройства
func NewSim(cfg SimConfig) *Sim {
	if cfg.Hz == 0 {
		cfg.Hz = DefaultSimConfig().Hz
	}
	s := &Sim{cfg: cfg, start: time.Now(), Flash: NewMemFlash()}
	s.Dev = New(s, s.Flash)
	_ = s.Dev.Start(SimFactory)
	return s
}

func (s *Sim) elapsed() time.Duration { return time.Since(s.start) }

func (s *Sim) ticksAt(d time.Duration) uint64 {
	return uint64(d.Seconds() * float64(s.cfg.Hz) * (1 + s.cfg.LocalPPM*1e-6))
}

// Millis реализует Hardware
func (s *Sim) Millis() uint32 { return uint32(s.elapsed().Milliseconds()) }

// Counters реализует Hardware
func (s *Sim) Counters() (low, high uint16) {
	t := s.ticksAt(s.elapsed())
	return uint16(t), uint16(t >> 16)
}

// edgeAt — момент n-го фронта канала ch относительно старта
func (s *Sim) edgeAt(ch int, n int64) time.Duration {
	sec := float64(n)
	switch ch {
	case 0:
		sec *= 1 - s.cfg.SignalPPM*1e-6
	case 2:
		sec += 0.333
	}
	return time.Duration(sec * float64(time.Second))
}

// ADCCodes — сырые коды АЦП (внешний датчик, кристалл, vref) при температуре tempC
func ADCCodes(f Factory, tempC float64) (ext, internal, vref uint16) {
	const scale = 4096 / 3.3
	v30 := float64(f.TSCal1) / scale
	v110 := float64(f.TSCal2) / scale
	vt := v30 + (tempC-30)*(v110-v30)/80
	ve := 0.750 + (tempC-25)/100
	return uint16(math.Round(ve * scale)), uint16(math.Round(vt * scale)), f.VrefIntCal
}

// Run генерирует фронты и отсчёты АЦП до отмены ctx.
func (s *Sim) Run(ctx context.Context) error {
	next := [regmap.Channels]int64{1, 1, 1}
	adc := time.NewTicker(100 * time.Millisecond)
	defer adc.Stop()

	for {
		ch := 0
		for i := 1; i < regmap.Channels; i++ {
			if s.edgeAt(i, next[i]) < s.edgeAt(ch, next[ch]) {
				ch = i
			}
		}
		at := s.edgeAt(ch, next[ch])
		timer := time.NewTimer(time.Until(s.start.Add(at)))
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-adc.C:
				ext, internal, vref := ADCCodes(SimFactory, s.cfg.TempC)
				s.Dev.SampleADC(ext, internal, vref)
				s.Dev.Poll()
			case <-timer.C:
				break wait
			}
		}
		s.Dev.Capture(ch, uint16(s.ticksAt(at)))
		next[ch]++
	}
}

// Package shm — сегмент разделяемой памяти NTP SHM (refclock 28 ntpd, chrony SHM).
package shm

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// Параметры сегмента
const (
	BaseKey          = 0x4e545030 // "NTP0"; ключ юнита n — BaseKey+n
	Units            = 4
	Size             = 96
	DefaultPrecision = -26 // 2^-26 с ≈ 15 нс
)

// Time — раскладка struct shmTime на 64-битном Linux. Выравнивание задано явными полями,
// размер одинаков на всех архитектурах.
type Time struct {
	Mode                 int32
	Count                int32
	ClockTimeStampSec    int64
	ClockTimeStampUSec   int32
	_                    int32
	ReceiveTimeStampSec  int64
	ReceiveTimeStampUSec int32
	Leap                 int32
	Precision            int32
	NSamples             int32
	Valid                int32
	ClockTimeStampNSec   uint32
	ReceiveTimeStampNSec uint32
	Dummy                [8]int32
	_                    int32
}

var _ [Size]byte = [unsafe.Sizeof(Time{})]byte{}

// Sample — одна пара меток: Clock — время эталона, Receive — системное время того же события.
type Sample struct {
	Clock     time.Time
	Receive   time.Time
	Leap      int32
	Precision int32
}

// Offset — смещение системных часов относительно эталона (Clock − Receive)
func (s Sample) Offset() time.Duration { return s.Clock.Sub(s.Receive) }

// PPSSample — фронт PPS, пришедшийся на системное время edge: эталон — ближайшая целая секунда.
func PPSSample(edge time.Time, precision int32) Sample {
	return Sample{Clock: edge.Round(time.Second), Receive: edge, Precision: precision}
}

// Segment — писатель/читатель поверх Time (в разделяемой памяти или обычной).
type Segment struct {
	t      *Time
	detach func() error
}

// NewSegment оборачивает готовую структуру
func NewSegment(t *Time) *Segment { return &Segment{t: t} }

// Store записывает образец по протоколу mode 1: valid=0, count++, поля, count++, valid=1.
func (s *Segment) Store(smp Sample) {
	t := s.t
	atomic.StoreInt32(&t.Valid, 0)
	atomic.AddInt32(&t.Count, 1)

	t.Mode = 1
	t.ClockTimeStampSec = smp.Clock.Unix()
	t.ClockTimeStampUSec = int32(smp.Clock.Nanosecond() / 1e3)
	t.ClockTimeStampNSec = uint32(smp.Clock.Nanosecond())
	t.ReceiveTimeStampSec = smp.Receive.Unix()
	t.ReceiveTimeStampUSec = int32(smp.Receive.Nanosecond() / 1e3)
	t.ReceiveTimeStampNSec = uint32(smp.Receive.Nanosecond())
	t.Leap = smp.Leap
	t.Precision = smp.Precision
	t.NSamples = 1

	atomic.AddInt32(&t.Count, 1)
	atomic.StoreInt32(&t.Valid, 1)
}

// Load читает образец. ok=false, если valid не установлен или писатель изменил count во время чтения.
func (s *Segment) Load() (smp Sample, ok bool) {
	t := s.t
	before := atomic.LoadInt32(&t.Count)
	if atomic.LoadInt32(&t.Valid) == 0 {
		return smp, false
	}
	smp = Sample{
		Clock:     time.Unix(t.ClockTimeStampSec, int64(t.ClockTimeStampNSec)),
		Receive:   time.Unix(t.ReceiveTimeStampSec, int64(t.ReceiveTimeStampNSec)),
		Leap:      t.Leap,
		Precision: t.Precision,
	}
	if atomic.LoadInt32(&t.Count) != before {
		return Sample{}, false
	}
	return smp, true
}

// Close отсоединяет сегмент
func (s *Segment) Close() error {
	if s.detach == nil {
		return nil
	}
	return s.detach()
}

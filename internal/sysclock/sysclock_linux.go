//go:build linux

// Package sysclock — чтение системных часов: CLOCK_REALTIME, разрешение и текущая коррекция частоты ядра.
package sysclock

import (
	"time"

	"golang.org/x/sys/unix"
)

// Now читает CLOCK_REALTIME напрямую (без монотонной составляющей time.Now).
func Now() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return time.Now().Round(0)
	}
	return time.Unix(ts.Unix())
}

// Resolution — разрешение CLOCK_REALTIME
func Resolution() (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGetres(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0, err
	}
	return time.Duration(ts.Nano()), nil
}

// KernelFrequency возвращает текущую коррекцию частоты ядра (ppm) без её изменения.
// Freq в timex — scaled ppm (freq/65536 = ppm).
func KernelFrequency() (ppm float64, err error) {
	buf := &unix.Timex{}
	if _, err = unix.Adjtimex(buf); err != nil {
		return 0, err
	}
	return float64(buf.Freq) / 65536, nil
}

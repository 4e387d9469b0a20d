//go:build !linux

// Package sysclock — чтение системных часов: CLOCK_REALTIME, разрешение и текущая коррекция частоты ядра.
package sysclock

import "time"

// Now — заглушка на не-Linux: time.Now без монотонной составляющей.
func Now() time.Time { return time.Now().Round(0) }

// Resolution — заглушка на не-Linux.
func Resolution() (time.Duration, error) { return time.Nanosecond, nil }

// KernelFrequency — заглушка на не-Linux.
func KernelFrequency() (float64, error) { return 0, nil }

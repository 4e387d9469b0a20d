// Package timeutil — модульная арифметика индексов и форматирование смещений.
package timeutil

import (
	"fmt"
	"time"
)

// WrapAdd возвращает (a + b) mod modulus для индексов кольцевого буфера; b может быть отрицательным.
func WrapAdd(a, b, modulus int) int {
	r := (a + b) % modulus
	if r < 0 {
		r += modulus
	}
	return r
}

// WrapSub возвращает (a − b) mod modulus.
func WrapSub(a, b, modulus int) int {
	return WrapAdd(a, -b, modulus)
}

// FormatNanos печатает знаковое смещение в наносекундах как секунды с 9 знаками: -0.000012345.
func FormatNanos(ns int64) string {
	sign := ""
	if ns < 0 {
		sign = "-"
		ns = -ns
	}
	return fmt.Sprintf("%s%d.%09d", sign, ns/1e9, ns%1e9)
}

// TicksToNanos переводит такты счётчика частоты hz в наносекунды.
func TicksToNanos(ticks int64, hz uint32) float64 {
	return float64(ticks) * 1e9 / float64(hz)
}

// TicksToDuration — то же для неотрицательных интервалов
func TicksToDuration(ticks uint32, hz uint32) time.Duration {
	return time.Duration(uint64(ticks) * uint64(time.Second) / uint64(hz))
}

// CtoF переводит °C в °F
func CtoF(c float64) float64 {
	return c*9/5 + 32
}

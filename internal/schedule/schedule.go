// Package schedule — расчёт паузы до следующего опроса: проснуться чуть позже ожидаемого фронта.
package schedule

import (
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

// Значения по умолчанию
const (
	DefaultPeriod = time.Second
	DefaultAim    = 5 * time.Millisecond
	NoDataSleep   = 995 * time.Millisecond
	MinSleep      = time.Millisecond
)

// NextWake — пауза до момента aim после следующего фронта, если последний был since назад.
// Результат ограничен [MinSleep, period+aim]; отрицательное или слишком большое since даёт period+aim.
func NextWake(since, period, aim time.Duration) time.Duration {
	max := period + aim
	if since < 0 || since > max {
		return max
	}
	d := max - since
	if d < MinSleep {
		return MinSleep
	}
	return d
}

// AdjustForChannels сдвигает пробуждение на aim за каждый канал, чей следующий фронт
// ожидается в пределах ±aim от момента пробуждения, чтобы не опрашивать дважды.
// ticks — восстановленные счётчики последних фронтов, expected — тактов за период, hz — частота счётчика.
func AdjustForChannels(sleep time.Duration, ticks [regmap.Channels]uint32, expected uint32, aim time.Duration, hz uint32) time.Duration {
	aimTicks := uint32(aim.Seconds() * float64(hz))
	if aimTicks == 0 || expected == 0 {
		return sleep
	}
	period := int64(expected)
	wake := ticks[0] + expected + aimTicks
	for i := range ticks {
		// расстояние до ближайшего фронта канала по модулю периода
		diff := int64(int32(ticks[i]+expected-wake)) % period
		if diff > period/2 {
			diff -= period
		} else if diff < -period/2 {
			diff += period
		}
		if diff < 0 {
			diff = -diff
		}
		if diff < int64(aimTicks) {
			wake += aimTicks
			sleep += aim
		}
	}
	return sleep
}

// Параметры режима меток времени
const (
	StampTarget   = 1005 * time.Millisecond
	StampMinSleep = 100 * time.Millisecond
	StampMaxSleep = 990 * time.Millisecond
)

// StampWake — пауза в режиме меток: проснуться через 5 мс после следующего фронта PPS,
// если последний был since назад.
func StampWake(since time.Duration) time.Duration {
	d := StampTarget - since
	switch {
	case d < StampMinSleep:
		return StampMinSleep
	case d > time.Second:
		return StampMaxSleep
	}
	return d
}

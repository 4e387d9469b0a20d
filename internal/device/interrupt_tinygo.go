//go:build tinygo

package device

import "runtime/interrupt"

type irqState = interrupt.State

// disableInterrupts запрещает прерывания и возвращает предыдущее состояние
func disableInterrupts() irqState {
	return interrupt.Disable()
}

// restoreInterrupts восстанавливает состояние прерываний
func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}

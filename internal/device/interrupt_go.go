//go:build !tinygo

package device

import "sync"

// Вне TinyGo обработчики «прерываний» вызываются из горутин эмулятора и шлейфа,
// поэтому критическая секция — общий мьютекс.
var irqMu sync.Mutex

type irqState struct{}

func disableInterrupts() irqState {
	irqMu.Lock()
	return irqState{}
}

func restoreInterrupts(irqState) {
	irqMu.Unlock()
}

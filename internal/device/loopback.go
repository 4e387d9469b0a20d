//go:build !tinygo

package device

import (
	"errors"
	"fmt"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/i2cbus"
)

// ErrCollision — имитация сбоя шины (прерывание на устройстве во время clock stretching)
var ErrCollision = errors.New("loopback: bus collision")

// Loopback — шина хоста, замкнутая на модель устройства в том же процессе.
// Каждая транзакция проходит через те же события, что генерирует периферия MCU.
type Loopback struct {
	Dev *Device

	// FailNext — сколько следующих транзакций завершить ошибкой ErrCollision
	FailNext int
	// Transactions — число успешно выполненных транзакций
	Transactions int
}

// Tx выполняет запись w, затем (repeated start) чтение в r.
func (l *Loopback) Tx(w, r []byte) error {
	if l.FailNext > 0 {
		l.FailNext--
		return ErrCollision
	}
	d := l.Dev
	if len(w) > 0 {
		d.HandleBus(Event{Kind: AddrMatch, Dir: HostWrite})
		for _, b := range w {
			d.HandleBus(Event{Kind: RxComplete, Data: b})
		}
		if len(r) == 0 {
			d.HandleBus(Event{Kind: ListenComplete})
		}
	}
	if len(r) > 0 {
		rep := d.HandleBus(Event{Kind: AddrMatch, Dir: HostRead})
		n := copy(r, rep.Tx)
		for n < len(r) {
			rep = d.HandleBus(Event{Kind: TxComplete})
			if rep.Op != OpTransmitFiller {
				break
			}
			n += copy(r[n:], rep.Tx)
		}
		d.HandleBus(Event{Kind: BusFault, Code: AckFailure})
		d.HandleBus(Event{Kind: ListenComplete})
		if n < len(r) {
			return fmt.Errorf("%w: read %d of %d", i2cbus.ErrShortTransfer, n, len(r))
		}
	}
	l.Transactions++
	d.Poll()
	return nil
}

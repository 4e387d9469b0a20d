// Package i2cbus — доступ хоста к устройству на шине I2C с однократным повтором транзакции.
package i2cbus

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRetryDelay — пауза перед повтором сбойной транзакции
const DefaultRetryDelay = 10 * time.Millisecond

// ErrShortTransfer — устройство вернуло/приняло меньше байт, чем запрошено
var ErrShortTransfer = errors.New("i2c: short transfer")

// Bus — одна транзакция: запись w, затем чтение в r (любой из буферов может быть пустым).
// Реализуется periph i2c.Dev и device.Loopback.
type Bus interface {
	Tx(w, r []byte) error
}

// Dev — устройство на шине с блокировкой и повтором.
// Прерывание на устройстве во время clock stretching иногда срывает одну транзакцию:
// такая транзакция повторяется ровно один раз после RetryDelay.
type Dev struct {
	mu         sync.Mutex
	Bus        Bus
	RetryDelay time.Duration
	Retries    int // число выполненных повторов

	sleep func(time.Duration)
}

// New оборачивает шину
func New(bus Bus) *Dev {
	return &Dev{Bus: bus, RetryDelay: DefaultRetryDelay}
}

// Lock блокирует устройство на время последовательности транзакций (выбор страницы + чтение).
func (d *Dev) Lock() { d.mu.Lock() }

// Unlock разблокирует устройство
func (d *Dev) Unlock() { d.mu.Unlock() }

// Write — транзакция только записи
func (d *Dev) Write(data []byte) error {
	if err := d.tx(data, nil); err != nil {
		return fmt.Errorf("write to i2c failed: %w", err)
	}
	return nil
}

// Read — транзакция только чтения
func (d *Dev) Read(buf []byte) error {
	if err := d.tx(nil, buf); err != nil {
		return fmt.Errorf("read from i2c failed: %w", err)
	}
	return nil
}

// Tx — запись, затем чтение без освобождения шины
func (d *Dev) Tx(w, r []byte) error {
	if err := d.tx(w, r); err != nil {
		return fmt.Errorf("i2c transaction failed: %w", err)
	}
	return nil
}

func (d *Dev) tx(w, r []byte) error {
	err := d.Bus.Tx(w, r)
	if err == nil {
		return nil
	}
	d.Retries++
	sleep := d.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(d.RetryDelay)
	if err2 := d.Bus.Tx(w, r); err2 != nil {
		return fmt.Errorf("retry: %w (first attempt: %v)", err2, err)
	}
	return nil
}

//go:build linux

package i2cbus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open открывает шину name ("/dev/i2c-1", "1" или "" — первая доступная) и устройство addr.
// Возвращает устройство и функцию закрытия шины.
func Open(name string, addr uint16) (*Dev, func() error, error) {
	// host.Init регистрирует sysfs-драйверы и вызывает driverreg.Init
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s failed: %w", name, err)
	}
	dev := &i2c.Dev{Addr: addr, Bus: bus}
	return New(dev), bus.Close, nil
}

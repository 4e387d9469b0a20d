//go:build !linux

package i2cbus

import "errors"

// Open на не-Linux платформах недоступен
func Open(name string, addr uint16) (*Dev, func() error, error) {
	return nil, nil, errors.New("i2c: only supported on linux")
}

// Package uart — отладочная консоль TCXO-контроллера: счётчики событий шины по UART.
package uart

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
	bugst "go.bug.st/serial"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/device"
)

// DefaultBaud — скорость консоли прошивки
const DefaultBaud = 115200

var (
	// ErrBadLine — строка консоли не разбирается
	ErrBadLine = errors.New("uart: malformed counters line")
	// ErrIdle — за ReadTimeout порт ничего не прислал
	ErrIdle = errors.New("uart: read timeout")
)

// Port — открытый порт консоли
type Port struct {
	port io.ReadWriteCloser
}

// Open открывает последовательный порт консоли
func Open(name string, baud int) (*Port, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", name, err)
	}
	return &Port{port: p}, nil
}

// Read читает из порта. Истёкший ReadTimeout (tarm/serial отдаёт 0, io.EOF) возвращается как ErrIdle.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == io.EOF {
		return 0, ErrIdle
	}
	return n, err
}

// Close закрывает порт
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// Ports перечисляет последовательные порты системы
func Ports() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// ParseLine разбирает строку вида "addr 3 rxcplt 6 ". Неизвестные имена пропускаются.
func ParseLine(line string) (device.Counters, error) {
	var c device.Counters
	f := strings.Fields(line)
	if len(f)%2 != 0 {
		return c, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
	for i := 0; i < len(f); i += 2 {
		v, err := strconv.ParseUint(f[i+1], 10, 32)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrBadLine, f[i], err)
		}
		n := uint32(v)
		switch f[i] {
		case "addr":
			c.Addr = n
		case "data_rcv":
			c.DataRcv = n
		case "rxcplt":
			c.RxCplt = n
		case "txcplt":
			c.TxCplt = n
		case "listen":
			c.Listen = n
		case "error":
			c.Error = n
		case "abort":
			c.Abort = n
		}
	}
	return c, nil
}

// Monitor читает строки из r и передаёт разобранные счётчики в fn до конца потока, ошибки чтения
// или отмены ctx. Битые строки пропускаются, ErrIdle означает тишину на линии.
func Monitor(ctx context.Context, r io.Reader, fn func(device.Counters)) error {
	br := bufio.NewReader(r)
	var line strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := br.ReadString('\n')
		line.WriteString(s)
		switch {
		case err == nil:
		case errors.Is(err, ErrIdle):
			continue
		case err == io.EOF:
			handleLine(line.String(), fn)
			return nil
		default:
			return fmt.Errorf("uart read: %w", err)
		}
		handleLine(line.String(), fn)
		line.Reset()
	}
}

func handleLine(line string, fn func(device.Counters)) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if c, err := ParseLine(line); err == nil {
		fn(c)
	}
}

package device

import (
	"fmt"
	"io"
	"strings"
)

// Counters — счётчики событий шины для отладочной консоли UART.
type Counters struct {
	Addr    uint32
	DataRcv uint32
	RxCplt  uint32
	TxCplt  uint32
	Listen  uint32
	Error   uint32
	Abort   uint32
}

func (c *Counters) count(k EventKind) {
	switch k {
	case AddrMatch:
		c.Addr++
	case RxComplete:
		c.RxCplt++
	case TxComplete:
		c.TxCplt++
	case ListenComplete:
		c.Listen++
	case BusFault:
		c.Error++
	case Abort:
		c.Abort++
	}
}

// Line форматирует ненулевые счётчики одной строкой: "addr 3 rxcplt 6 \n".
// Пустая строка, если всё по нулям.
func (c Counters) Line() string {
	var b strings.Builder
	for _, f := range []struct {
		name string
		v    uint32
	}{
		{"addr", c.Addr},
		{"data_rcv", c.DataRcv},
		{"rxcplt", c.RxCplt},
		{"txcplt", c.TxCplt},
		{"listen", c.Listen},
		{"error", c.Error},
		{"abort", c.Abort},
	} {
		if f.v > 0 {
			fmt.Fprintf(&b, "%s %d ", f.name, f.v)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("\n")
	return b.String()
}

// ShowCounters печатает ненулевые счётчики в w (консоль UART) и обнуляет их.
func (d *Device) ShowCounters(w io.Writer) error {
	s := disableInterrupts()
	c := d.counters
	d.counters = Counters{}
	restoreInterrupts(s)

	line := c.Line()
	if line == "" {
		return nil
	}
	_, err := io.WriteString(w, line)
	return err
}

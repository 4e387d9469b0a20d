package uart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/device"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want device.Counters
		err  bool
	}{
		{"addr 3 rxcplt 6 ", device.Counters{Addr: 3, RxCplt: 6}, false},
		{"addr 1 data_rcv 1 rxcplt 2 listen 1", device.Counters{Addr: 1, DataRcv: 1, RxCplt: 2, Listen: 1}, false},
		{"error 2 abort 1 txcplt 32", device.Counters{Error: 2, Abort: 1, TxCplt: 32}, false},
		{"bogus 5", device.Counters{}, false},
		{"addr", device.Counters{}, true},
		{"addr x", device.Counters{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLine(tt.line)
		if (err != nil) != tt.err {
			t.Errorf("%q: ошибка %v", tt.line, err)
			continue
		}
		if tt.err && !errors.Is(err, ErrBadLine) {
			t.Errorf("%q: ожидали ErrBadLine, получили %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("%q: %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseLineRoundTrip(t *testing.T) {
	c := device.Counters{Addr: 7, DataRcv: 2, RxCplt: 9, TxCplt: 31, Listen: 7, Error: 1, Abort: 1}
	got, err := ParseLine(c.Line())
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Errorf("%+v != %+v", got, c)
	}
}

func TestMonitor(t *testing.T) {
	in := strings.NewReader("addr 1 \n\ngarbage\naddr 2 listen 2 \n")
	var got []device.Counters
	if err := Monitor(context.Background(), in, func(c device.Counters) { got = append(got, c) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Addr != 1 || got[1].Listen != 2 {
		t.Errorf("получили %+v", got)
	}
}

func TestMonitorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Monitor(ctx, bytes.NewBufferString("addr 1\n"), func(device.Counters) { t.Error("не должно вызываться") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидали context.Canceled, получили %v", err)
	}
}

// idleLine отдаёт порции по очереди; пустая порция — истёкший таймаут порта (0, io.EOF).
// Когда порции кончаются, вызывается done.
type idleLine struct {
	chunks []string
	done   func()
}

func (l *idleLine) Read(b []byte) (int, error) {
	if len(l.chunks) == 0 {
		l.done()
		return 0, io.EOF
	}
	c := l.chunks[0]
	l.chunks = l.chunks[1:]
	if c == "" {
		return 0, io.EOF
	}
	return copy(b, c), nil
}

func (l *idleLine) Write(b []byte) (int, error) { return len(b), nil }
func (l *idleLine) Close() error                { return nil }

func TestMonitorSurvivesIdleTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &Port{port: &idleLine{
		chunks: []string{"addr 1 \n", "", "", "addr 2 ", "", "listen 5 \n"},
		done:   cancel,
	}}
	var got []device.Counters
	err := Monitor(ctx, p, func(c device.Counters) { got = append(got, c) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидали context.Canceled, получили %v", err)
	}
	if len(got) != 2 || got[0].Addr != 1 || got[1].Addr != 2 || got[1].Listen != 5 {
		t.Errorf("тишина на линии не должна обрывать чтение: %+v", got)
	}
}

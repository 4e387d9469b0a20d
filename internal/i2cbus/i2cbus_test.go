package i2cbus

import (
	"errors"
	"testing"
	"time"
)

type flakyBus struct {
	fails int
	calls int
}

func (b *flakyBus) Tx(w, r []byte) error {
	b.calls++
	if b.fails > 0 {
		b.fails--
		return errors.New("remote I/O error")
	}
	for i := range r {
		r[i] = byte(i)
	}
	return nil
}

func newTestDev(bus Bus) (*Dev, *[]time.Duration) {
	var slept []time.Duration
	d := New(bus)
	d.sleep = func(d time.Duration) { slept = append(slept, d) }
	return d, &slept
}

func TestRetryOnce(t *testing.T) {
	bus := &flakyBus{fails: 1}
	d, slept := newTestDev(bus)
	buf := make([]byte, 4)
	if err := d.Read(buf); err != nil {
		t.Fatalf("одна ошибка должна повторяться: %v", err)
	}
	if bus.calls != 2 || d.Retries != 1 {
		t.Errorf("calls %d retries %d", bus.calls, d.Retries)
	}
	if len(*slept) != 1 || (*slept)[0] != DefaultRetryDelay {
		t.Errorf("пауза перед повтором: %v", *slept)
	}
	if buf[3] != 3 {
		t.Errorf("данные после повтора: %v", buf)
	}
}

func TestSecondFailureFatal(t *testing.T) {
	bus := &flakyBus{fails: 2}
	d, _ := newTestDev(bus)
	if err := d.Write([]byte{31, 0}); err == nil {
		t.Fatal("две ошибки подряд должны возвращаться")
	}
	if bus.calls != 2 {
		t.Errorf("повтор ровно один: calls %d", bus.calls)
	}
}

func TestNoRetryOnSuccess(t *testing.T) {
	bus := &flakyBus{}
	d, slept := newTestDev(bus)
	if err := d.Tx([]byte{31, 0}, make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if bus.calls != 1 || len(*slept) != 0 {
		t.Errorf("calls %d slept %v", bus.calls, *slept)
	}
}

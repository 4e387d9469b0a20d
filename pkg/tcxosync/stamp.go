package tcxosync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/config"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/cycles"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regclient"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/schedule"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/shm"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/timeutil"
)

// Sink принимает метки PPS (shm.Segment)
type Sink interface {
	Store(shm.Sample)
}

// UnchangedSleep — пауза, если фронт канала 2 не обновился
const UnchangedSleep = time.Second

// Stamp — результат одного цикла режима меток.
type Stamp struct {
	Unchanged bool
	Wrapped   bool
	Ticks     uint32        // счётчик в момент выбора страницы 4
	Ch2       uint32        // восстановленный счётчик фронта канала 2
	Ago       time.Duration // давность фронта на момент выбора страницы
	RTT       time.Duration
	Sample    shm.Sample
	Sleep     time.Duration
}

// Stamper — цикл меток времени: фронт PPS канала 2 против CLOCK_REALTIME.
type Stamper struct {
	cfg    *config.Config
	client *regclient.Client
	sink   Sink
	out    io.Writer

	lastCh2   uint32
	lastCount uint8
	seen      bool

	Sleep func(ctx context.Context, d time.Duration) error
}

// NewStamper — client.Now должен читать системные часы (sysclock.Now).
func NewStamper(cfg *config.Config, client *regclient.Client, sink Sink, out io.Writer) *Stamper {
	if out == nil {
		out = io.Discard
	}
	return &Stamper{cfg: cfg, client: client, sink: sink, out: out, Sleep: sleepCtx}
}

// Cycle — один опрос. Ошибка фатальная.
func (s *Stamper) Cycle() (Stamp, error) {
	var st Stamp
	r, err := s.client.ReadStamp()
	if err != nil {
		return st, err
	}
	t := r.Telemetry
	ch2 := cycles.Combine(t.HighAtIRQ[1], t.Captured[1])
	if s.seen && ch2 == s.lastCh2 {
		logger.Info("ch2 unchanged count: %d->%d", s.lastCount, t.Ch2Count)
		st.Unchanged = true
		st.Sleep = UnchangedSleep
		return st, nil
	}

	hz := s.cfg.Device.ExpectedFrequency
	if s.seen && ch2-s.lastCh2 > hz+cycles.Rollover {
		// старший счётчик переполнился между capture и прерыванием
		ch2 -= cycles.Rollover
		st.Wrapped = true
	}
	st.Ticks = r.Raw.Ticks()
	st.Ch2 = ch2
	st.Ago = timeutil.TicksToDuration(st.Ticks-ch2, hz)
	st.RTT = r.End.Sub(r.Start)

	req, resp := s.cfg.SHM.RequestLatency, s.cfg.SHM.ResponseLatency
	edge := r.Start.Add(req + (st.RTT-req-resp)/2 - st.Ago)
	st.Sample = shm.PPSSample(edge, s.cfg.SHM.Precision)
	s.sink.Store(st.Sample)

	st.Sleep = schedule.StampWake(st.Ago)
	s.lastCh2 = ch2
	s.lastCount = t.Ch2Count
	s.seen = true

	var flags uint8
	if st.Wrapped {
		flags = 1
	}
	_, err = fmt.Fprintf(s.out, "%d %d %.9f %.9f %d %v %x\n",
		st.Ticks, st.Ch2, st.Ago.Seconds(), -st.Sample.Offset().Seconds(), st.Sleep.Microseconds(), st.RTT, flags)
	if err != nil {
		logger.Error("stamp output: %v", err)
	}
	return st, nil
}

// Run — циклы до отмены ctx или фатальной ошибки.
func (s *Stamper) Run(ctx context.Context) error {
	for {
		st, err := s.Cycle()
		if err != nil {
			return err
		}
		if err := s.Sleep(ctx, st.Sleep); err != nil {
			return err
		}
	}
}

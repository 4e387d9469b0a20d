// Package tcxosync — цикл опроса TCXO-контроллера: восстановление счётчиков, оценка дрейфа
// с термокомпенсацией и публикация ppm; режим меток времени для NTP SHM.
package tcxosync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/averager"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/config"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/cycles"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/estimator"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/publish"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regclient"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/schedule"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/timeutil"
)

// Publisher принимает публикуемый ppm (publish.File)
type Publisher interface {
	Write(ppm float64) error
}

// Status — итог одного цикла опроса
type Status uint8

const (
	Accepted Status = iota
	NoNewData
	FirstCycle
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case NoNewData:
		return "no new data"
	case FirstCycle:
		return "first cycle"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Cycle — результат одного опроса.
type Cycle struct {
	Status    Status
	Sleep     time.Duration
	Telemetry regmap.Telemetry
	Samples   [regmap.Channels]cycles.Sample
	Result    estimator.Result
	Published bool
}

// Daemon — состояние цикла опроса.
type Daemon struct {
	cfg    *config.Config
	client *regclient.Client
	pub    Publisher
	table  *logger.Table

	recon *cycles.Reconstructor
	est   *estimator.Estimator
	adc   *averager.ADC

	lastCapture uint32
	seen        bool

	// Now — часы для колонки ts (по умолчанию time.Now)
	Now func() time.Time
	// Sleep — пауза между циклами с учётом отмены
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewDaemon создаёт цикл опроса. out — поток таблицы (по строке на цикл), может быть nil.
func NewDaemon(cfg *config.Config, client *regclient.Client, out io.Writer) *Daemon {
	if out == nil {
		out = io.Discard
	}
	d := &Daemon{
		cfg:    cfg,
		client: client,
		pub:    publish.File{Path: cfg.Publish.Path, TempPath: cfg.Publish.TempPath},
		recon:  cycles.New(cfg.Device.ExpectedFrequency, cfg.Estimator.WrapTolerancePPM),
		est:    estimator.New(cfg.EstimatorParams()),
		adc:    averager.NewADC(),
		Now:    time.Now,
		Sleep:  sleepCtx,
	}
	d.table = &logger.Table{W: out, Widths: columnWidths(len(cfg.Estimator.Windows))}
	return d
}

// SetPublisher заменяет публикацию в файл
func (d *Daemon) SetPublisher(p Publisher) { d.pub = p }

// Estimator — оценщик дрейфа (для диагностики)
func (d *Daemon) Estimator() *estimator.Estimator { return d.est }

// Init читает модель TCXO со страницы 3, задаёт делитель канала 1 и печатает заголовок таблицы.
func (d *Daemon) Init() error {
	if d.cfg.Device.SourceHz != 0 {
		if err := d.client.SetSourceHz(d.cfg.Device.SourceHz); err != nil {
			return fmt.Errorf("set source_hz: %w", err)
		}
	}
	cal, err := d.client.ReadCalibration()
	if err != nil {
		return fmt.Errorf("read calibration: %w", err)
	}
	switch {
	case !*d.cfg.Estimator.TemperatureCompensation:
		logger.Info("temperature compensation disabled")
	case cal.IsZero():
		logger.Info("no TCXO model on device, temperature compensation off")
	default:
		d.est.SetModel(cal)
		logger.Info("TCXO model a=%g b=%g c=%g d=%g range %d..%d F rmse %d ppb",
			cal.A, cal.B, cal.C, cal.D, cal.MinTemp, cal.MaxTemp, cal.RMSE)
	}
	return d.table.Header(header(d.cfg.Estimator.Windows)...)
}

// Cycle выполняет один опрос. Ошибка — фатальная (шина после повтора, версия, селектор).
func (d *Daemon) Cycle() (Cycle, error) {
	var c Cycle
	r, err := d.client.ReadTelemetry()
	if err != nil {
		return c, err
	}
	t := r.Telemetry
	c.Telemetry = t

	if d.seen && t.TickCapture == d.lastCapture {
		logger.Info("no new data")
		d.recon.Reset()
		d.est.Reset()
		c.Status = NoNewData
		c.Sleep = d.cfg.Schedule.NoDataSleep
		return c, nil
	}
	d.lastCapture = t.TickCapture
	d.seen = true

	since := time.Duration(t.TickNow-t.TickCapture) * time.Millisecond
	c.Sleep = schedule.NextWake(since, schedule.DefaultPeriod, d.cfg.Schedule.AimAfter)
	if d.adc.Add(r.Analog, t.TickNow) {
		logger.Debug("adc: %.2f C, ext %.2f F, vref %.4f V, age %d ms",
			d.adc.TempC(), d.adc.ExtTempF(), d.adc.Vref.Value(), d.adc.DelayMs())
	}

	samples, ok := d.recon.Update(t)
	if !ok {
		logger.Info("first cycle, sleeping %d ms", c.Sleep.Milliseconds())
		c.Status = FirstCycle
		return c, nil
	}
	c.Samples = samples

	var ticks [regmap.Channels]uint32
	for i := range samples {
		ticks[i] = samples[i].Ticks
	}
	hz := d.cfg.Device.ExpectedFrequency
	c.Sleep = schedule.AdjustForChannels(c.Sleep, ticks, hz, d.cfg.Schedule.AimAfter, hz)

	haveTemp := d.adc.Ready() && *d.cfg.Estimator.TemperatureCompensation
	c.Result = d.est.Process(samples, d.adc.TempF(), haveTemp)
	if c.Result.Discarded {
		logger.Info("ch1 offset %.0f ns outside +/-%.0f ppm, sample dropped, window restarted",
			c.Result.OffsetNs[0], d.cfg.Estimator.WrapTolerancePPM)
	} else if c.Result.Degraded {
		logger.Debug("reference channel out of band, fallback offset used")
	}

	if err := d.table.Row(d.row(c, since)...); err != nil {
		logger.Error("table: %v", err)
	}

	if c.Result.Publish {
		if err := d.pub.Write(c.Result.Relative); err != nil {
			logger.Error("publish: %v", err)
		} else {
			c.Published = true
		}
	} else if w := c.Result.Windows[len(c.Result.Windows)-1]; w.OK {
		logger.Info("ppm %.3f outside +/-%.0f of baseline %.3f, withheld",
			w.PPM, *d.cfg.Estimator.PublishBandPPM, c.Result.Baseline)
	}
	return c, nil
}

// Run — Init и циклы опроса до отмены ctx или фатальной ошибки.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Init(); err != nil {
		return err
	}
	for {
		c, err := d.Cycle()
		if err != nil {
			return err
		}
		if err := d.Sleep(ctx, c.Sleep); err != nil {
			return err
		}
	}
}

func header(windows []int) []string {
	h := []string{"ts", "delay", "wrap", "sleepms", "cycles1", "cycles2", "cycles3", "#pts", "ch1", "ch2", "ch3", "t.offset"}
	for _, w := range windows {
		h = append(h, fmt.Sprintf("%ds_ppm", w))
	}
	return append(h, "tempcomp")
}

func columnWidths(windows int) []int {
	w := []int{10, 5, 4, 7, 10, 10, 10, 4, 7, 7, 7, 12}
	for i := 0; i < windows; i++ {
		w = append(w, 8)
	}
	return append(w, 8)
}

func (d *Daemon) row(c Cycle, since time.Duration) []string {
	r := c.Result
	cols := []string{
		fmt.Sprint(d.Now().Unix()),
		fmt.Sprint(since.Milliseconds()),
		fmt.Sprint(cycles.Flags(c.Samples)),
		fmt.Sprint(c.Sleep.Milliseconds()),
		fmt.Sprint(c.Samples[0].Ticks),
		fmt.Sprint(c.Samples[1].Ticks),
		fmt.Sprint(c.Samples[2].Ticks),
		fmt.Sprint(r.Points),
		fmt.Sprintf("%0.0f", r.OffsetNs[0]),
		fmt.Sprintf("%0.0f", r.OffsetNs[1]),
		fmt.Sprintf("%0.0f", r.OffsetNs[2]),
		timeutil.FormatNanos(int64(r.Cumulative)),
	}
	for _, w := range r.Windows {
		if w.OK {
			cols = append(cols, fmt.Sprintf("%1.3f", w.PPM))
		} else {
			cols = append(cols, "-")
		}
	}
	return append(cols, fmt.Sprintf("%0.0f", r.TempCompNs))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

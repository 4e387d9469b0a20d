// Package config — YAML-конфигурация tcxo-sync.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/cycles"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/estimator"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/i2cbus"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/publish"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/schedule"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/shm"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/uart"
)

// Config — конфигурация tcxo-sync
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Publish   PublishConfig   `yaml:"publish"`
	SHM       SHMConfig       `yaml:"shm"`
	UART      UARTConfig      `yaml:"uart"`
}

// DeviceConfig — шина и TCXO-контроллер
type DeviceConfig struct {
	Bus               string        `yaml:"bus"` // имя шины periph ("" — первая доступная, "1" — /dev/i2c-1)
	Addr              uint16        `yaml:"addr"`
	ExpectedFrequency uint32        `yaml:"expected_frequency"`
	ProtocolVersion   uint8         `yaml:"protocol_version"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	SourceHz          uint16        `yaml:"source_hz"` // 0 — не трогать значение устройства
	Emulate           bool          `yaml:"emulate"`
}

// EstimatorConfig — оценка дрейфа
type EstimatorConfig struct {
	AveragingCycles         int      `yaml:"averaging_cycles"`
	Windows                 []int    `yaml:"windows"`
	AbsoluteChannel         *int     `yaml:"absolute_channel"`
	AbsoluteBandPPM         *float64 `yaml:"absolute_band_ppm"`
	FallbackOffsetNs        *float64 `yaml:"fallback_offset_ns"`
	WrapTolerancePPM        float64  `yaml:"wrap_tolerance_ppm"`
	BaselinePPM             *float64 `yaml:"baseline_ppm"`
	BaselineSamples         *int     `yaml:"baseline_samples"`
	PublishBandPPM          *float64 `yaml:"publish_band_ppm"`
	TemperatureCompensation *bool    `yaml:"temperature_compensation"`
}

// ScheduleConfig — расписание опроса
type ScheduleConfig struct {
	AimAfter    time.Duration `yaml:"aim_after"`
	NoDataSleep time.Duration `yaml:"no_data_sleep"`
}

// PublishConfig — файл с ppm
type PublishConfig struct {
	Path     string `yaml:"path"`
	TempPath string `yaml:"temp_path"`
}

// SHMConfig — режим меток времени (NTP SHM)
type SHMConfig struct {
	Unit            int           `yaml:"unit"`
	Precision       int32         `yaml:"precision"`
	RequestLatency  time.Duration `yaml:"request_latency"`
	ResponseLatency time.Duration `yaml:"response_latency"`
}

// UARTConfig — отладочная консоль контроллера
type UARTConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	e := estimator.DefaultConfig()
	abs := e.AbsoluteChannel
	band, fallback := e.AbsoluteBandPPM, e.FallbackNs
	baseline, publishBand := e.BaselinePPM, e.PublishBandPPM
	samples := e.BaselineSamples
	tc := true
	return &Config{
		Device: DeviceConfig{
			Addr:              regmap.DefaultAddr,
			ExpectedFrequency: cycles.DefaultExpected,
			ProtocolVersion:   regmap.Version,
			RetryDelay:        i2cbus.DefaultRetryDelay,
		},
		Estimator: EstimatorConfig{
			AveragingCycles:         e.AveragingCycles,
			Windows:                 e.Windows,
			AbsoluteChannel:         &abs,
			AbsoluteBandPPM:         &band,
			FallbackOffsetNs:        &fallback,
			WrapTolerancePPM:        cycles.DefaultTolerancePPM,
			BaselinePPM:             &baseline,
			BaselineSamples:         &samples,
			PublishBandPPM:          &publishBand,
			TemperatureCompensation: &tc,
		},
		Schedule: ScheduleConfig{
			AimAfter:    schedule.DefaultAim,
			NoDataSleep: schedule.NoDataSleep,
		},
		Publish: PublishConfig{
			Path:     publish.DefaultPath,
			TempPath: publish.DefaultTempPath,
		},
		SHM: SHMConfig{
			Precision:       shm.DefaultPrecision,
			RequestLatency:  20 * time.Microsecond,
			ResponseLatency: 80 * time.Microsecond,
		},
		UART: UARTConfig{
			Baud: uart.DefaultBaud,
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML и подставляет значения по умолчанию
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет диапазоны
func (c *Config) Validate() error {
	if c.SHM.Unit < 0 || c.SHM.Unit >= shm.Units {
		return fmt.Errorf("config: shm.unit %d out of range 0..%d", c.SHM.Unit, shm.Units-1)
	}
	if a := *c.Estimator.AbsoluteChannel; a < -1 || a >= regmap.Channels {
		return fmt.Errorf("config: estimator.absolute_channel %d out of range -1..%d", a, regmap.Channels-1)
	}
	for _, w := range c.Estimator.Windows {
		if w <= 0 || w >= c.Estimator.AveragingCycles {
			return fmt.Errorf("config: window %d must be in 1..%d", w, c.Estimator.AveragingCycles-1)
		}
	}
	return nil
}

// EstimatorParams переводит секцию в параметры оценщика
func (c *Config) EstimatorParams() estimator.Config {
	return estimator.Config{
		Expected:        c.Device.ExpectedFrequency,
		AveragingCycles: c.Estimator.AveragingCycles,
		Windows:         c.Estimator.Windows,
		AbsoluteChannel: *c.Estimator.AbsoluteChannel,
		AbsoluteBandPPM: *c.Estimator.AbsoluteBandPPM,
		FallbackNs:      *c.Estimator.FallbackOffsetNs,
		BaselinePPM:     *c.Estimator.BaselinePPM,
		BaselineSamples: *c.Estimator.BaselineSamples,
		PublishBandPPM:  *c.Estimator.PublishBandPPM,
		TolerancePPM:    c.Estimator.WrapTolerancePPM,
	}
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Device.Addr == 0 {
		c.Device.Addr = d.Device.Addr
	}
	if c.Device.ExpectedFrequency == 0 {
		c.Device.ExpectedFrequency = d.Device.ExpectedFrequency
	}
	if c.Device.ProtocolVersion == 0 {
		c.Device.ProtocolVersion = d.Device.ProtocolVersion
	}
	if c.Device.RetryDelay == 0 {
		c.Device.RetryDelay = d.Device.RetryDelay
	}

	e := &c.Estimator
	if e.AveragingCycles == 0 {
		e.AveragingCycles = d.Estimator.AveragingCycles
	}
	if len(e.Windows) == 0 {
		e.Windows = d.Estimator.Windows
	}
	if e.AbsoluteChannel == nil {
		e.AbsoluteChannel = d.Estimator.AbsoluteChannel
	}
	if e.AbsoluteBandPPM == nil {
		e.AbsoluteBandPPM = d.Estimator.AbsoluteBandPPM
	}
	if e.FallbackOffsetNs == nil {
		e.FallbackOffsetNs = d.Estimator.FallbackOffsetNs
	}
	if e.WrapTolerancePPM == 0 {
		e.WrapTolerancePPM = d.Estimator.WrapTolerancePPM
	}
	if e.BaselinePPM == nil {
		e.BaselinePPM = d.Estimator.BaselinePPM
	}
	if e.BaselineSamples == nil {
		e.BaselineSamples = d.Estimator.BaselineSamples
	}
	if e.PublishBandPPM == nil {
		e.PublishBandPPM = d.Estimator.PublishBandPPM
	}
	if e.TemperatureCompensation == nil {
		e.TemperatureCompensation = d.Estimator.TemperatureCompensation
	}

	if c.Schedule.AimAfter == 0 {
		c.Schedule.AimAfter = d.Schedule.AimAfter
	}
	if c.Schedule.NoDataSleep == 0 {
		c.Schedule.NoDataSleep = d.Schedule.NoDataSleep
	}
	if c.Publish.Path == "" {
		c.Publish.Path = d.Publish.Path
	}
	if c.Publish.TempPath == "" {
		c.Publish.TempPath = d.Publish.TempPath
	}
	if c.SHM.Precision == 0 {
		c.SHM.Precision = d.SHM.Precision
	}
	if c.SHM.RequestLatency == 0 {
		c.SHM.RequestLatency = d.SHM.RequestLatency
	}
	if c.SHM.ResponseLatency == 0 {
		c.SHM.ResponseLatency = d.SHM.ResponseLatency
	}
	if c.UART.Baud == 0 {
		c.UART.Baud = d.UART.Baud
	}
}

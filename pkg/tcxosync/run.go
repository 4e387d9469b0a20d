package tcxosync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/config"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/device"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/i2cbus"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regclient"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/shm"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/sysclock"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/uart"
)

// Connect открывает устройство: шину periph либо эмулятор платы (device.emulate).
// Возвращённая функция освобождает ресурсы.
func Connect(ctx context.Context, cfg *config.Config) (*regclient.Client, func() error, error) {
	var (
		dev   *i2cbus.Dev
		closer func() error
	)
	if cfg.Device.Emulate {
		sim := device.NewSim(device.DefaultSimConfig())
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("emulator: %v", err)
			}
		}()
		dev = i2cbus.New(&device.Loopback{Dev: sim.Dev})
		closer = func() error {
			cancel()
			<-done
			return nil
		}
		logger.Info("emulated TCXO board")
	} else {
		var err error
		dev, closer, err = i2cbus.Open(cfg.Device.Bus, cfg.Device.Addr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("bus %q addr %#02x", cfg.Device.Bus, cfg.Device.Addr)
	}
	dev.RetryDelay = cfg.Device.RetryDelay
	client := regclient.New(dev)
	client.Version = cfg.Device.ProtocolVersion
	client.Now = sysclock.Now
	return client, closer, nil
}

// RunDaemon — опрос и публикация ppm до отмены ctx.
func RunDaemon(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, closeDev, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDev()
	logger.Info("expected %d Hz, publish %s", cfg.Device.ExpectedFrequency, cfg.Publish.Path)
	return NewDaemon(cfg, client, out).Run(ctx)
}

// RunTimestamps — метки PPS в сегмент NTP SHM до отмены ctx.
func RunTimestamps(ctx context.Context, cfg *config.Config, out io.Writer) error {
	seg, err := shm.Attach(cfg.SHM.Unit)
	if err != nil {
		return err
	}
	defer seg.Close()

	client, closeDev, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	if res, err := sysclock.Resolution(); err == nil {
		logger.Info("shm unit %d, clock resolution %v", cfg.SHM.Unit, res)
	}
	if ppm, err := sysclock.KernelFrequency(); err == nil {
		logger.Debug("kernel frequency %.3f ppm", ppm)
	}
	return NewStamper(cfg, client, seg, out).Run(ctx)
}

// RunConsole печатает счётчики событий шины с отладочной консоли контроллера.
// Без порта выводит список доступных портов.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.UART.Port == "" {
		ports, err := uart.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return errors.New("no serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	}
	port, err := uart.Open(cfg.UART.Port, cfg.UART.Baud)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()
	err = uart.Monitor(ctx, port, func(c device.Counters) {
		fmt.Fprintf(out, "addr %d data_rcv %d rxcplt %d txcplt %d listen %d error %d abort %d\n",
			c.Addr, c.DataRcv, c.RxCplt, c.TxCplt, c.Listen, c.Error, c.Abort)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

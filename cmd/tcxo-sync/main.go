// tcxo-sync — опрос TCXO-контроллера по I2C: дрейф частоты опорного генератора
// с термокомпенсацией, публикация ppm для chrony/ntpd и метки PPS через NTP SHM.
//
// Использование:
//
//	tcxo-sync -config tcxo-sync.yml   — опрос и публикация ppm в /run/tcxo
//	tcxo-sync -timestamps -unit 1     — метки PPS канала 2 в сегмент NTP SHM
//	tcxo-sync -console -uart /dev/ttyAMA0 — счётчики шины с отладочной консоли
//	tcxo-sync -emulate                — то же на эмуляторе платы
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/config"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tcxo-sync/pkg/tcxosync"
)

func main() {
	timestamps := flag.Bool("timestamps", false, "режим меток времени: PPS канала 2 в NTP SHM")
	console := flag.Bool("console", false, "читать счётчики шины с отладочной консоли UART")
	emulate := flag.Bool("emulate", false, "эмулятор платы вместо шины I2C")
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию tcxo-sync.yml)")
	bus := flag.String("bus", "", "шина I2C (переопределяет config)")
	addr := flag.Uint("addr", 0, "адрес устройства (переопределяет config)")
	unit := flag.Int("unit", -1, "юнит NTP SHM 0..3 (переопределяет config)")
	uartPort := flag.String("uart", "", "порт отладочной консоли (переопределяет config)")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	verbose := flag.Bool("verbose", false, "отладочные сообщения")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *bus != "" {
		cfg.Device.Bus = *bus
	}
	if *addr != 0 {
		cfg.Device.Addr = uint16(*addr)
	}
	if *unit >= 0 {
		cfg.SHM.Unit = *unit
	}
	if *uartPort != "" {
		cfg.UART.Port = *uartPort
	}
	if *emulate {
		cfg.Device.Emulate = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Quiet = *quiet
	logger.Verbose = *verbose

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	run := tcxosync.RunDaemon
	switch {
	case *timestamps:
		run = tcxosync.RunTimestamps
	case *console:
		run = tcxosync.RunConsole
	}
	if err := run(ctx, cfg, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "tcxo-sync.yml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

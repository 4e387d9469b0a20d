// tcxo-calibration — чтение и запись модели TCXO (страница 3) и подгонка модели по измерениям.
//
// Использование:
//
//	tcxo-calibration get
//	tcxo-calibration set a b c d max_temp min_temp rmse
//	tcxo-calibration fit [-write] samples.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/calfit"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/config"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regclient"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
	"github.com/shiwa/timecard-mini/tcxo-sync/pkg/tcxosync"
)

// saveWait — время на стирание и запись flash перед чтением save_status
const saveWait = 200 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу")
	bus := flag.String("bus", "", "шина I2C (переопределяет config)")
	emulate := flag.Bool("emulate", false, "эмулятор платы вместо шины I2C")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *bus != "" {
		cfg.Device.Bus = *bus
	}
	cfg.Device.Emulate = cfg.Device.Emulate || *emulate
	logger.Quiet = true

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	var err error
	switch args[0] {
	case "get":
		err = withClient(cfg, get)
	case "set":
		var cal regmap.Calibration
		if cal, err = parseSet(args[1:]); err == nil {
			err = withClient(cfg, func(c *regclient.Client) error { return set(c, cal) })
		}
	case "fit":
		err = fit(cfg, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] get | set a b c d max_temp min_temp rmse | fit [-write] samples.csv\n", os.Args[0])
	flag.PrintDefaults()
}

func withClient(cfg *config.Config, fn func(*regclient.Client) error) error {
	client, closeDev, err := tcxosync.Connect(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeDev()
	return fn(client)
}

func get(c *regclient.Client) error {
	cal, err := c.ReadCalibration()
	if err != nil {
		return err
	}
	printCalibration(cal)
	return nil
}

func printCalibration(cal regmap.Calibration) {
	fmt.Printf("a = %g\nb = %g\nc = %g\nd = %g\n", cal.A, cal.B, cal.C, cal.D)
	fmt.Printf("temperature range %d..%d F\nrmse %d ppb\nsave status %s\n",
		cal.MinTemp, cal.MaxTemp, cal.RMSE, cal.SaveStatus)
}

func set(c *regclient.Client, cal regmap.Calibration) error {
	if err := c.WriteCalibration(cal); err != nil {
		return err
	}
	time.Sleep(saveWait)
	got, err := c.ReadCalibration()
	if err != nil {
		return err
	}
	printCalibration(got)
	if got.SaveStatus != regmap.SaveOK {
		return fmt.Errorf("flash save: %s", got.SaveStatus)
	}
	return nil
}

func parseSet(args []string) (regmap.Calibration, error) {
	var cal regmap.Calibration
	if len(args) != 7 {
		return cal, fmt.Errorf("need 7 arguments, got %d", len(args))
	}
	var coef [4]float32
	for i := range coef {
		v, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return cal, fmt.Errorf("coefficient %d: %w", i, err)
		}
		coef[i] = float32(v)
	}
	maxT, err := strconv.ParseUint(args[4], 10, 8)
	if err != nil {
		return cal, fmt.Errorf("max_temp: %w", err)
	}
	minT, err := strconv.ParseInt(args[5], 10, 8)
	if err != nil {
		return cal, fmt.Errorf("min_temp: %w", err)
	}
	rmse, err := strconv.ParseUint(args[6], 10, 8)
	if err != nil {
		return cal, fmt.Errorf("rmse: %w", err)
	}
	cal.A, cal.B, cal.C, cal.D = coef[0], coef[1], coef[2], coef[3]
	cal.MaxTemp, cal.MinTemp, cal.RMSE = uint8(maxT), int8(minT), uint8(rmse)
	return cal, nil
}

func fit(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	write := fs.Bool("write", false, "записать результат в устройство")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("need one csv file")
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	points, err := calfit.ParseCSV(f)
	if err != nil {
		return err
	}
	res, err := calfit.Fit(points)
	if err != nil {
		return err
	}
	fmt.Printf("%d points, %.1f..%.1f F, rmse %.1f ppb\n", res.N, res.MinF, res.MaxF, res.RMSEppb)
	cal := res.Calibration()
	if !*write {
		printCalibration(cal)
		return nil
	}
	return withClient(cfg, func(c *regclient.Client) error { return set(c, cal) })
}

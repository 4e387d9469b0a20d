// Package calfit подбирает модель TCXO ppm = a + b(F−c) + d(F−c)² по измерениям (°F, ppm).
package calfit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

// ErrTooFewPoints — для квадратичной модели нужно не меньше трёх различных температур
var ErrTooFewPoints = errors.New("calfit: need at least 3 distinct temperatures")

// Point — одно измерение
type Point struct {
	TempF float64
	PPM   float64
}

// Result — коэффициенты и качество подгонки.
type Result struct {
	A, B, C, D float64
	RMSEppb    float64
	MinF, MaxF float64
	N          int
}

// Calibration переводит результат в страницу 3. Границы округляются наружу,
// RMSE насыщается в диапазон байта.
func (r Result) Calibration() regmap.Calibration {
	return regmap.Calibration{
		A:       float32(r.A),
		B:       float32(r.B),
		C:       float32(r.C),
		D:       float32(r.D),
		MaxTemp: uint8(clamp(math.Ceil(r.MaxF), 0, math.MaxUint8)),
		MinTemp: int8(clamp(math.Floor(r.MinF), math.MinInt8, math.MaxInt8)),
		RMSE:    uint8(clamp(math.Round(r.RMSEppb), 0, math.MaxUint8)),
	}
}

// Fit — наименьшие квадраты с центрированием по средней температуре.
func Fit(points []Point) (Result, error) {
	n := len(points)
	temps := make([]float64, n)
	ppm := make([]float64, n)
	distinct := map[float64]struct{}{}
	for i, p := range points {
		temps[i], ppm[i] = p.TempF, p.PPM
		distinct[p.TempF] = struct{}{}
	}
	if len(distinct) < 3 {
		return Result{}, ErrTooFewPoints
	}

	c := stat.Mean(temps, nil)
	x := mat.NewDense(n, 3, nil)
	for i, t := range temps {
		dt := t - c
		x.Set(i, 0, 1)
		x.Set(i, 1, dt)
		x.Set(i, 2, dt*dt)
	}
	y := mat.NewVecDense(n, ppm)

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return Result{}, fmt.Errorf("calfit: solve: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	resid := make([]float64, n)
	floats.SubTo(resid, ppm, fitted.RawVector().Data)
	mse := floats.Dot(resid, resid) / float64(n)

	return Result{
		A:       beta.AtVec(0),
		B:       beta.AtVec(1),
		C:       c,
		D:       beta.AtVec(2),
		RMSEppb: math.Sqrt(mse) * 1000,
		MinF:    floats.Min(temps),
		MaxF:    floats.Max(temps),
		N:       n,
	}, nil
}

// ParseCSV читает пары "temp_f,ppm". Строки, где первое поле не число (заголовок), пропускаются.
func ParseCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	var out []Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calfit: csv: %w", err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("calfit: line %d: need 2 columns", line)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if len(out) == 0 {
				continue
			}
			return nil, fmt.Errorf("calfit: line %d: temp: %w", line, err)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("calfit: line %d: ppm: %w", line, err)
		}
		out = append(out, Point{TempF: t, PPM: p})
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

package calfit

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func model(a, b, c, d float64) func(float64) float64 {
	return func(f float64) float64 {
		x := f - c
		return a + b*x + d*x*x
	}
}

func TestFitExact(t *testing.T) {
	truth := model(20.4, -0.02, 80, 0.0015)
	var pts []Point
	for f := 60.0; f <= 100; f += 2 {
		pts = append(pts, Point{TempF: f, PPM: truth(f)})
	}
	r, err := Fit(pts)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r.C-80) > 1e-9 {
		t.Errorf("c = %v, ожидали среднюю температуру 80", r.C)
	}
	for _, f := range []float64{60, 75, 100} {
		x := f - r.C
		got := r.A + r.B*x + r.D*x*x
		if math.Abs(got-truth(f)) > 1e-9 {
			t.Errorf("модель при %v°F: %v, want %v", f, got, truth(f))
		}
	}
	if r.RMSEppb > 1e-6 {
		t.Errorf("RMSE = %v ppb на точных данных", r.RMSEppb)
	}
	if r.MinF != 60 || r.MaxF != 100 || r.N != len(pts) {
		t.Errorf("границы %v..%v, n %d", r.MinF, r.MaxF, r.N)
	}
}

func TestFitNoisy(t *testing.T) {
	truth := model(1, 0.1, 0, 0)
	pts := []Point{
		{70, truth(70) + 0.01},
		{72, truth(72) - 0.01},
		{74, truth(74) + 0.01},
		{76, truth(76) - 0.01},
	}
	r, err := Fit(pts)
	if err != nil {
		t.Fatal(err)
	}
	if r.RMSEppb <= 0 || r.RMSEppb > 10 {
		t.Errorf("RMSE = %v ppb, ожидали (0, 10]", r.RMSEppb)
	}
}

func TestFitTooFew(t *testing.T) {
	_, err := Fit([]Point{{70, 1}, {70, 1.1}, {71, 1.2}})
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("ожидали ErrTooFewPoints, получили %v", err)
	}
}

func TestCalibrationBounds(t *testing.T) {
	r := Result{A: 20.465, MinF: -200.5, MaxF: 75.2, RMSEppb: 400}
	c := r.Calibration()
	if c.MaxTemp != 76 || c.MinTemp != -128 || c.RMSE != 255 {
		t.Errorf("max %d min %d rmse %d", c.MaxTemp, c.MinTemp, c.RMSE)
	}
	if c.A != float32(20.465) {
		t.Errorf("a = %v", c.A)
	}
}

func TestParseCSV(t *testing.T) {
	in := "temp_f,ppm\n# комментарий\n70.5, 20.1\n71,20.2\n"
	pts, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[0] != (Point{70.5, 20.1}) {
		t.Errorf("получили %+v", pts)
	}
	if _, err := ParseCSV(strings.NewReader("70,1\nx,2\n")); err == nil {
		t.Error("нечисловая строка после данных должна давать ошибку")
	}
}

package regmap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Telemetry — страница 1 (capture по трём каналам).
type Telemetry struct {
	TickNow     uint32           // тик на момент выбора страницы
	TickCapture uint32           // тик последнего capture канала 1
	LowAtIRQ    [Channels]uint16 // младший счётчик в момент прерывания
	HighAtIRQ   [Channels]uint16 // старший счётчик в момент прерывания
	Captured    [Channels]uint16 // защёлкнутое значение младшего счётчика
	SourceHz    uint16           // ожидаемая частота источника канала 1
	Ch2Count    uint8
	Ch3Count    uint8
	Version     uint8
	Selector    uint8
}

// Analog — страница 2 (ADC и заводские константы).
type Analog struct {
	TickADC      uint32
	InternalTemp uint16
	InternalVref uint16
	ExternalTemp uint16
	TSCal1       uint16 // internal_temp при 30°C, 3.3 В
	TSCal2       uint16 // internal_temp при 110°C, 3.3 В
	VrefIntCal   uint16 // internal_vref при 30°C, 3.3 В
	Selector     uint8
}

// Calibration — страница 3: ppm = A + B·(F−C) + D·(F−C)².
type Calibration struct {
	A, B, C, D float32
	MaxTemp    uint8 // °F
	MinTemp    int8  // °F
	RMSE       uint8 // ppb
	Save       uint8
	SaveStatus SaveStatus
	Selector   uint8
}

// RawCounters — страница 4: свободные счётчики на момент выбора страницы.
type RawCounters struct {
	Low      uint16
	High     uint16
	Selector uint8
}

// Ticks склеивает старший и младший счётчик в 32-битный тик
func (r RawCounters) Ticks() uint32 {
	return uint32(r.High)<<16 | uint32(r.Low)
}

// SaveStatus — результат последнего сохранения калибровки
type SaveStatus uint8

const (
	SaveNone SaveStatus = iota
	SaveOK
	SaveEraseFail
	SaveWriteFail
)

func (s SaveStatus) String() string {
	switch s {
	case SaveNone:
		return "none"
	case SaveOK:
		return "ok"
	case SaveEraseFail:
		return "erase fail"
	case SaveWriteFail:
		return "write fail"
	default:
		return "??"
	}
}

// EncodeFloat — big-endian битовый образ IEEE-754 float32
func EncodeFloat(v float32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	return b
}

// DecodeFloat — обратное к EncodeFloat
func DecodeFloat(b [4]byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b[:]))
}

// value — привязка поля таблицы к полю Go-структуры
type value interface {
	get() uint32
	set(uint32)
}

type u32 struct{ p *uint32 }

func (v u32) get() uint32  { return *v.p }
func (v u32) set(x uint32) { *v.p = x }

type u16 struct{ p *uint16 }

func (v u16) get() uint32  { return uint32(*v.p) }
func (v u16) set(x uint32) { *v.p = uint16(x) }

type u8 struct{ p *uint8 }

func (v u8) get() uint32  { return uint32(*v.p) }
func (v u8) set(x uint32) { *v.p = uint8(x) }

type i8 struct{ p *int8 }

func (v i8) get() uint32  { return uint32(uint8(*v.p)) }
func (v i8) set(x uint32) { *v.p = int8(uint8(x)) }

type f32 struct{ p *float32 }

func (v f32) get() uint32  { return math.Float32bits(*v.p) }
func (v f32) set(x uint32) { *v.p = math.Float32frombits(x) }

type status struct{ p *SaveStatus }

func (v status) get() uint32  { return uint32(*v.p) }
func (v status) set(x uint32) { *v.p = SaveStatus(x) }

// bind сопоставляет поля раскладки значениям по порядку объявления.
func bind(l Layout, vals ...value) []binding {
	if len(vals) != len(l.Fields) {
		panic(fmt.Sprintf("regmap: %s layout has %d fields, bound %d", l.Page, len(l.Fields), len(vals)))
	}
	out := make([]binding, len(vals))
	for i := range vals {
		out[i] = binding{f: l.Fields[i], v: vals[i]}
	}
	return out
}

type binding struct {
	f Field
	v value
}

func encode(bs []binding) [PageSize]byte {
	var buf [PageSize]byte
	for _, b := range bs {
		b.f.Put(buf[:], b.v.get())
	}
	return buf
}

func decode(bs []binding, buf []byte) error {
	if len(buf) < PageSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPage, len(buf))
	}
	for _, b := range bs {
		b.v.set(b.f.Get(buf))
	}
	return nil
}

func (t *Telemetry) bindings() []binding {
	vals := []value{u32{&t.TickNow}, u32{&t.TickCapture}}
	for i := range t.LowAtIRQ {
		vals = append(vals, u16{&t.LowAtIRQ[i]})
	}
	for i := range t.HighAtIRQ {
		vals = append(vals, u16{&t.HighAtIRQ[i]})
	}
	for i := range t.Captured {
		vals = append(vals, u16{&t.Captured[i]})
	}
	vals = append(vals, u16{&t.SourceHz}, u8{&t.Ch2Count}, u8{&t.Ch3Count}, u8{&t.Version}, u8{&t.Selector})
	return bind(TelemetryLayout, vals...)
}

// Encode сериализует страницу
func (t *Telemetry) Encode() [PageSize]byte { return encode(t.bindings()) }

// Decode разбирает страницу
func (t *Telemetry) Decode(b []byte) error { return decode(t.bindings(), b) }

func (a *Analog) bindings() []binding {
	return bind(AnalogLayout,
		u32{&a.TickADC}, u16{&a.InternalTemp}, u16{&a.InternalVref}, u16{&a.ExternalTemp},
		u16{&a.TSCal1}, u16{&a.TSCal2}, u16{&a.VrefIntCal}, u8{&a.Selector})
}

// Encode раскладывает страницу 2 в байты
func (a *Analog) Encode() [PageSize]byte { return encode(a.bindings()) }

// Decode разбирает страницу 2
func (a *Analog) Decode(b []byte) error { return decode(a.bindings(), b) }

func (c *Calibration) bindings() []binding {
	return bind(TCXOLayout,
		f32{&c.A}, f32{&c.B}, f32{&c.C}, f32{&c.D},
		u8{&c.MaxTemp}, i8{&c.MinTemp}, u8{&c.RMSE},
		u8{&c.Save}, status{&c.SaveStatus}, u8{&c.Selector})
}

// Encode раскладывает страницу 3 в байты
func (c *Calibration) Encode() [PageSize]byte { return encode(c.bindings()) }

// Decode разбирает страницу 3
func (c *Calibration) Decode(b []byte) error { return decode(c.bindings(), b) }

// IsZero — модель не задана (все коэффициенты нулевые)
func (c *Calibration) IsZero() bool {
	return c.A == 0 && c.B == 0 && c.C == 0 && c.D == 0
}

// PPM вычисляет ppm модели при температуре f (°F).
// При валидных границах (max > min) температура ограничивается диапазоном калибровки.
func (c *Calibration) PPM(f float64) float64 {
	if int(c.MaxTemp) > int(c.MinTemp) {
		f = math.Max(float64(c.MinTemp), math.Min(float64(c.MaxTemp), f))
	}
	x := f - float64(c.C)
	return float64(c.A) + float64(c.B)*x + float64(c.D)*x*x
}

func (r *RawCounters) bindings() []binding {
	return bind(RawLayout, u16{&r.Low}, u16{&r.High}, u8{&r.Selector})
}

// Encode раскладывает страницу 4 в байты
func (r *RawCounters) Encode() [PageSize]byte { return encode(r.bindings()) }

// Decode разбирает страницу 4
func (r *RawCounters) Decode(b []byte) error { return decode(r.bindings(), b) }

package averager

import (
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/timeutil"
)

// Параметры усреднения
const (
	RawSamples    = 60 // сырые отсчёты (≈1 минута при одном чтении в секунду)
	MinuteSamples = 10 // минутные средние опорного напряжения
	TempSamples   = 60

	adcFullScale   = 4096.0
	nominalVoltage = 3.3
)

// Vref — двухуровневое среднее опорного напряжения: 60 сырых отсчётов,
// затем 10 минутных средних.
type Vref struct {
	raw    *Window[float64]
	minute *Window[float64]
	value  float64
}

func NewVref() *Vref {
	return &Vref{raw: NewWindow[float64](RawSamples), minute: NewWindow[float64](MinuteSamples)}
}

// Add добавляет отношение vref. Пока нет минутных средних, значение — среднее сырых отсчётов;
// после этого обновляется раз в заполнение сырого окна.
func (v *Vref) Add(x float64) {
	if v.raw.Full() {
		v.minute.Add(v.raw.Mean())
		v.raw.Reset()
		v.value = v.minute.Mean()
	}
	v.raw.Add(x)
	if v.minute.Len() == 0 {
		v.value = v.raw.Mean()
	}
}

// Value — опубликованное опорное напряжение, В
func (v *Vref) Value() float64 { return v.value }

// Minutes — сколько минутных средних накоплено
func (v *Vref) Minutes() int { return v.minute.Len() }

// RefVoltage — фактическое напряжение питания АЦП по заводской константе VREFINT_CAL.
func RefVoltage(vrefIntCal, internalVref uint16) float64 {
	expected := float64(vrefIntCal) / adcFullScale * nominalVoltage
	actual := float64(internalVref) / adcFullScale * nominalVoltage
	return expected / actual * nominalVoltage
}

// InternalTempC — температура кристалла по двум заводским точкам (30°C и 110°C).
func InternalTempC(raw, tsCal1, tsCal2 uint16, vref float64) float64 {
	v := float64(raw) / adcFullScale * vref
	v30 := float64(tsCal1) / adcFullScale * nominalVoltage
	v110 := float64(tsCal2) / adcFullScale * nominalVoltage
	return (v-v30)*(110-30)/(v110-v30) + 30
}

// ExternalTempC — внешний датчик: 750 мВ при 25°C, 10 мВ/°C.
func ExternalTempC(raw uint16, vref float64) float64 {
	v := float64(raw) / adcFullScale * vref
	return (v-0.750)*100 + 25
}

// ADC — усреднение страницы 2 на стороне хоста.
type ADC struct {
	Vref    *Vref
	temp    *Window[float64]
	extTemp *Window[float64]
	lastADC uint32
	seen    bool
	delayMs uint32
}

func NewADC() *ADC {
	return &ADC{
		Vref:    NewVref(),
		temp:    NewWindow[float64](TempSamples),
		extTemp: NewWindow[float64](TempSamples),
	}
}

// Add учитывает страницу 2, если АЦП обновился с прошлого вызова.
// tickNow — tick_now страницы 1 того же чтения, для задержки публикации.
// Возвращает false, если отсчёт повторный или непригоден (нулевые калибровки).
func (a *ADC) Add(p regmap.Analog, tickNow uint32) bool {
	if a.seen && p.TickADC == a.lastADC {
		return false
	}
	if p.InternalVref == 0 || p.TSCal1 == p.TSCal2 {
		return false
	}
	a.seen = true
	a.lastADC = p.TickADC
	a.delayMs = tickNow - p.TickADC

	a.Vref.Add(RefVoltage(p.VrefIntCal, p.InternalVref))
	vref := a.Vref.Value()
	a.temp.Add(InternalTempC(p.InternalTemp, p.TSCal1, p.TSCal2, vref))
	a.extTemp.Add(ExternalTempC(p.ExternalTemp, vref))
	return true
}

// Ready — есть хотя бы один отсчёт
func (a *ADC) Ready() bool { return a.temp.Len() > 0 }

// TempC — средняя температура кристалла, °C
func (a *ADC) TempC() float64 { return a.temp.Mean() }

// TempF — то же в °F
func (a *ADC) TempF() float64 { return timeutil.CtoF(a.temp.Mean()) }

// ExtTempF — средняя температура внешнего датчика, °F
func (a *ADC) ExtTempF() float64 { return timeutil.CtoF(a.extTemp.Mean()) }

// DelayMs — возраст последнего ADC-отсчёта на момент чтения
func (a *ADC) DelayMs() uint32 { return a.delayMs }

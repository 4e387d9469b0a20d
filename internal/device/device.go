// Package device — модель микроконтроллера TCXO-платы: страницы регистров,
// обработчики capture/ADC, автомат ведомого на шине и хранение калибровки во flash.
//
// Все входы (Capture, SampleADC, HandleBus, Poll) — это «обработчики прерываний»
// одного приоритета: каждый выполняется целиком внутри критической секции.
// Снимок страницы для передачи делается в момент выбора страницы.
package device

import (
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/averager"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

// Параметры прошивки
const (
	DefaultSourceHz = 1  // capture канала 1 на каждом фронте
	ADCSamples      = 10 // усреднение сырых кодов АЦП
)

// Hardware — таймеры микроконтроллера.
type Hardware interface {
	// Millis — миллисекунды с запуска (HAL_GetTick)
	Millis() uint32
	// Counters — текущие значения младшего (16 бит, частота эталона) и старшего (переполнения младшего) счётчиков
	Counters() (low, high uint16)
}

// Factory — заводские константы АЦП из системной памяти
type Factory struct {
	TSCal1     uint16
	TSCal2     uint16
	VrefIntCal uint16
}

// Device — состояние устройства: живые образы страниц, снимок для передачи, автомат шины.
type Device struct {
	hw    Hardware
	flash Flash

	tel    regmap.Telemetry
	analog regmap.Analog
	tcxo   regmap.Calibration
	raw    regmap.RawCounters

	page regmap.PageID
	tx   [regmap.PageSize]byte

	xfer       Transfer
	counters   Counters
	sourceLeft uint16

	extTemps *averager.Window[uint16]
	intTemps *averager.Window[uint16]
	vrefs    *averager.Window[uint16]

	savePending bool
}

// New создаёт устройство; flash может быть nil (калибровка не сохраняется).
func New(hw Hardware, flash Flash) *Device {
	return &Device{
		hw:       hw,
		flash:    flash,
		extTemps: averager.NewWindow[uint16](ADCSamples),
		intTemps: averager.NewWindow[uint16](ADCSamples),
		vrefs:    averager.NewWindow[uint16](ADCSamples),
	}
}

// Start обнуляет страницы, загружает калибровку из flash и делает снимок страницы 1.
func (d *Device) Start(f Factory) error {
	s := disableInterrupts()
	defer restoreInterrupts(s)

	d.tel = regmap.Telemetry{SourceHz: DefaultSourceHz, Version: regmap.Version, Selector: byte(regmap.PageTelemetry)}
	d.analog = regmap.Analog{TSCal1: f.TSCal1, TSCal2: f.TSCal2, VrefIntCal: f.VrefIntCal, Selector: byte(regmap.PageAnalog)}
	d.tcxo = regmap.Calibration{Selector: byte(regmap.PageTCXO)}
	d.raw = regmap.RawCounters{Selector: byte(regmap.PageRaw)}
	d.sourceLeft = DefaultSourceHz
	d.xfer = Transfer{}

	var err error
	if d.flash != nil {
		err = d.loadCalibration()
	}
	d.selectPage(regmap.PageTelemetry)
	return err
}

// Capture — прерывание input capture. ch — индекс канала (0..2), captured — защёлкнутое
// значение младшего счётчика. Канал 1 фиксируется раз в source_HZ фронтов,
// каналы 2 и 3 — на каждом фронте с инкрементом своего 8-битного счётчика.
func (d *Device) Capture(ch int, captured uint16) {
	if ch < 0 || ch >= regmap.Channels {
		return
	}
	s := disableInterrupts()
	defer restoreInterrupts(s)

	if ch == 0 {
		if d.sourceLeft > 1 {
			d.sourceLeft--
			return
		}
		if d.tel.SourceHz == 0 {
			d.tel.SourceHz = DefaultSourceHz
		}
		d.sourceLeft = d.tel.SourceHz
		d.tel.TickCapture = d.hw.Millis()
	}
	low, high := d.hw.Counters()
	d.tel.LowAtIRQ[ch] = low
	d.tel.HighAtIRQ[ch] = high
	d.tel.Captured[ch] = captured
	switch ch {
	case 1:
		d.tel.Ch2Count++
	case 2:
		d.tel.Ch3Count++
	}
}

// SampleADC — один цикл преобразования АЦП из главного цикла. Средние последних
// ADCSamples отсчётов публикуются в страницу 2, если хост сейчас не читает.
func (d *Device) SampleADC(external, internalTemp, internalVref uint16) {
	s := disableInterrupts()
	defer restoreInterrupts(s)

	d.extTemps.Add(external)
	d.intTemps.Add(internalTemp)
	d.vrefs.Add(internalVref)
	if d.readActive() {
		return
	}
	d.analog.ExternalTemp = d.extTemps.Mean()
	d.analog.InternalTemp = d.intTemps.Mean()
	d.analog.InternalVref = d.vrefs.Mean()
	d.analog.TickADC = d.hw.Millis()
}

// Poll — обслуживание в главном цикле: отложенное сохранение калибровки.
func (d *Device) Poll() {
	s := disableInterrupts()
	pending := d.savePending
	d.savePending = false
	restoreInterrupts(s)

	if pending {
		d.saveCalibration()
	}
}

// Page — текущая выбранная страница
func (d *Device) Page() regmap.PageID {
	s := disableInterrupts()
	defer restoreInterrupts(s)
	return d.page
}

// Telemetry возвращает копию живой страницы 1
func (d *Device) Telemetry() regmap.Telemetry {
	s := disableInterrupts()
	defer restoreInterrupts(s)
	return d.tel
}

// Calibration возвращает копию живой страницы 3
func (d *Device) Calibration() regmap.Calibration {
	s := disableInterrupts()
	defer restoreInterrupts(s)
	return d.tcxo
}

// Snapshot возвращает копию буфера передачи
func (d *Device) Snapshot() [regmap.PageSize]byte {
	s := disableInterrupts()
	defer restoreInterrupts(s)
	return d.tx
}

func (d *Device) readActive() bool {
	return d.xfer.State == SendData || d.xfer.State == GetAddr
}

// selectPage переключает страницу, обновляет поля, зависящие от момента выбора,
// и копирует страницу в буфер передачи. Вызывается внутри критической секции.
func (d *Device) selectPage(p regmap.PageID) {
	d.page = p
	switch p {
	case regmap.PageTelemetry:
		d.tel.TickNow = d.hw.Millis()
		d.tx = d.tel.Encode()
	case regmap.PageAnalog:
		d.tx = d.analog.Encode()
	case regmap.PageTCXO:
		d.tx = d.tcxo.Encode()
	case regmap.PageRaw:
		d.raw.Low, d.raw.High = d.hw.Counters()
		d.tx = d.raw.Encode()
	}
}

// receive — запись байта хостом по позиции pos.
func (d *Device) receive(pos uint8, b byte) {
	d.counters.DataRcv++
	if pos >= regmap.PageSize {
		return
	}
	if pos == regmap.OffsetPage {
		d.selectPage(regmap.SelectPage(b))
		return
	}
	if d.page == regmap.PageTCXO && regmap.TCXOLayout.Writable(pos) {
		buf := d.tcxo.Encode()
		buf[pos] = b
		_ = d.tcxo.Decode(buf[:])
		if pos == regmap.OffsetSave && b != 0 {
			d.savePending = true
		}
		return
	}
	if regmap.TelemetryLayout.Writable(pos) {
		buf := d.tel.Encode()
		buf[pos] = b
		_ = d.tel.Decode(buf[:])
	}
}

// Package regmap — раскладка регистровых страниц TCXO-контроллера (32 байта на страницу).
//
// Одна таблица полей (смещение, ширина, доступ, порядок байт) на страницу и одна
// общая процедура encode/decode: используется и моделью устройства, и хостом.
package regmap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Параметры протокола
const (
	PageSize    = 32   // размер страницы и транзакции (SMBus max 32)
	OffsetPage  = 31   // байт селектора страницы
	Version     = 1    // меняется только при несовместимом изменении раскладки
	DefaultAddr = 0x04 // адрес устройства на шине
	Channels    = 3    // число каналов input capture
)

// PageID — значение селектора (байт 31)
type PageID uint8

const (
	PageTelemetry PageID = 0 // страница 1: capture
	PageAnalog    PageID = 1 // страница 2: ADC и заводская калибровка
	PageTCXO      PageID = 2 // страница 3: модель TCXO
	PageRaw       PageID = 3 // страница 4: сырые счётчики
)

// SelectPage переводит записанный хостом байт в страницу; неизвестные значения — страница 1.
func SelectPage(sel byte) PageID {
	if sel > byte(PageRaw) {
		return PageTelemetry
	}
	return PageID(sel)
}

func (p PageID) String() string {
	switch p {
	case PageTelemetry:
		return "telemetry"
	case PageAnalog:
		return "analog"
	case PageTCXO:
		return "tcxo"
	case PageRaw:
		return "raw"
	default:
		return fmt.Sprintf("page(%d)", uint8(p))
	}
}

// ErrShortPage — буфер короче страницы
var ErrShortPage = errors.New("regmap: short page buffer")

// Access — режим доступа к полю со стороны хоста
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
	Selector
)

// Field — одно поле страницы.
type Field struct {
	Name   string
	Offset uint8
	Width  uint8 // 1, 2 или 4
	Access Access
	Order  binary.ByteOrder // nil = little-endian (нативный порядок MCU)
}

func (f Field) order() binary.ByteOrder {
	if f.Order == nil {
		return binary.LittleEndian
	}
	return f.Order
}

// Contains — попадает ли байтовая позиция в поле
func (f Field) Contains(pos uint8) bool {
	return pos >= f.Offset && pos < f.Offset+f.Width
}

// Get читает значение поля из буфера страницы
func (f Field) Get(b []byte) uint32 {
	s := b[f.Offset : f.Offset+f.Width]
	switch f.Width {
	case 1:
		return uint32(s[0])
	case 2:
		return uint32(f.order().Uint16(s))
	default:
		return f.order().Uint32(s)
	}
}

// Put записывает значение поля в буфер страницы
func (f Field) Put(b []byte, v uint32) {
	s := b[f.Offset : f.Offset+f.Width]
	switch f.Width {
	case 1:
		s[0] = byte(v)
	case 2:
		f.order().PutUint16(s, uint16(v))
	default:
		f.order().PutUint32(s, v)
	}
}

// Layout — таблица полей одной страницы.
type Layout struct {
	Page   PageID
	Fields []Field
}

// Writable возвращает true, если позиция принадлежит полю, доступному хосту на запись.
func (l Layout) Writable(pos uint8) bool {
	for _, f := range l.Fields {
		if f.Access == ReadWrite && f.Contains(pos) {
			return true
		}
	}
	return false
}

// Lookup ищет поле по имени
func (l Layout) Lookup(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func u16Fields(prefix string, off uint8) []Field {
	out := make([]Field, Channels)
	for i := range out {
		out[i] = Field{Name: fmt.Sprintf("%s[%d]", prefix, i), Offset: off + uint8(2*i), Width: 2}
	}
	return out
}

var selectorField = Field{Name: "page_offset", Offset: OffsetPage, Width: 1, Access: Selector}

// TelemetryLayout — страница 1.
var TelemetryLayout = Layout{
	Page: PageTelemetry,
	Fields: concat(
		[]Field{
			{Name: "tick_now", Offset: 0, Width: 4},
			{Name: "tick_capture_ch1", Offset: 4, Width: 4},
		},
		u16Fields("low_at_irq", 8),
		u16Fields("high_at_irq", 14),
		u16Fields("captured", 20),
		[]Field{
			{Name: "source_hz_ch1", Offset: 26, Width: 2, Access: ReadWrite},
			{Name: "ch2_count", Offset: 28, Width: 1},
			{Name: "ch3_count", Offset: 29, Width: 1},
			{Name: "version", Offset: 30, Width: 1},
			selectorField,
		},
	),
}

// AnalogLayout — страница 2.
var AnalogLayout = Layout{
	Page: PageAnalog,
	Fields: []Field{
		{Name: "tick_adc", Offset: 0, Width: 4},
		{Name: "internal_temp", Offset: 4, Width: 2},
		{Name: "internal_vref", Offset: 6, Width: 2},
		{Name: "external_temp", Offset: 8, Width: 2},
		{Name: "ts_cal1", Offset: 10, Width: 2},
		{Name: "ts_cal2", Offset: 12, Width: 2},
		{Name: "vrefint_cal", Offset: 14, Width: 2},
		selectorField,
	},
}

// Смещения страницы 3
const (
	OffsetSave       = 19 // ненулевая запись запускает сохранение во flash
	OffsetSaveStatus = 20
	TCXOWriteLength  = 20 // байты 0..19 доступны хосту
)

// TCXOLayout — страница 3. Коэффициенты — big-endian битовые образы float32.
var TCXOLayout = Layout{
	Page: PageTCXO,
	Fields: []Field{
		{Name: "tcxo_a", Offset: 0, Width: 4, Access: ReadWrite, Order: binary.BigEndian},
		{Name: "tcxo_b", Offset: 4, Width: 4, Access: ReadWrite, Order: binary.BigEndian},
		{Name: "tcxo_c", Offset: 8, Width: 4, Access: ReadWrite, Order: binary.BigEndian},
		{Name: "tcxo_d", Offset: 12, Width: 4, Access: ReadWrite, Order: binary.BigEndian},
		{Name: "max_calibration_temp", Offset: 16, Width: 1, Access: ReadWrite},
		{Name: "min_calibration_temp", Offset: 17, Width: 1, Access: ReadWrite},
		{Name: "rmse_fit", Offset: 18, Width: 1, Access: ReadWrite},
		{Name: "save", Offset: OffsetSave, Width: 1, Access: ReadWrite},
		{Name: "save_status", Offset: OffsetSaveStatus, Width: 1},
		selectorField,
	},
}

// RawLayout — страница 4.
var RawLayout = Layout{
	Page: PageRaw,
	Fields: []Field{
		{Name: "low_now", Offset: 0, Width: 2},
		{Name: "high_now", Offset: 2, Width: 2},
		selectorField,
	},
}

// LayoutFor возвращает таблицу полей страницы
func LayoutFor(p PageID) Layout {
	switch p {
	case PageAnalog:
		return AnalogLayout
	case PageTCXO:
		return TCXOLayout
	case PageRaw:
		return RawLayout
	default:
		return TelemetryLayout
	}
}

func concat(parts ...[]Field) []Field {
	var out []Field
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

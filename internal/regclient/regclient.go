// Package regclient — чтение и запись страниц регистров TCXO-контроллера со стороны хоста.
package regclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/i2cbus"
	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

var (
	// ErrWrongPage — селектор в прочитанной странице не совпал с выбранным
	ErrWrongPage = errors.New("got wrong page offset")
	// ErrVersion — версия раскладки страниц не поддерживается
	ErrVersion = errors.New("got unexpected version")
)

// Client — страничный доступ к устройству.
type Client struct {
	Dev     *i2cbus.Dev
	Version uint8
	// Now — часы для измерения времени транзакций (по умолчанию time.Now)
	Now func() time.Time
}

// New создаёт клиента с ожидаемой версией протокола regmap.Version
func New(dev *i2cbus.Dev) *Client {
	return &Client{Dev: dev, Version: regmap.Version, Now: time.Now}
}

// Reading — результат одного опроса: страницы 1 и 2 и длительность обмена.
type Reading struct {
	Telemetry regmap.Telemetry
	Analog    regmap.Analog
	RTT       time.Duration
}

// Stamp — снимок сырых счётчиков с временем выбора страницы 4 по системным часам.
type Stamp struct {
	Raw       regmap.RawCounters
	Telemetry regmap.Telemetry
	Start     time.Time // перед транзакцией выбора страницы
	End       time.Time // после неё
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// selectPage — запись селектора. Вызывается под Lock.
func (c *Client) selectPage(p regmap.PageID) error {
	return c.Dev.Write([]byte{regmap.OffsetPage, byte(p)})
}

// readPage читает 32 байта и проверяет селектор. Вызывается под Lock.
func (c *Client) readPage(p regmap.PageID) ([]byte, error) {
	buf := make([]byte, regmap.PageSize)
	if err := c.Dev.Read(buf); err != nil {
		return nil, err
	}
	if got := buf[regmap.OffsetPage]; got != byte(p) {
		return nil, fmt.Errorf("%w: %d != %d", ErrWrongPage, got, byte(p))
	}
	return buf, nil
}

func (c *Client) fetch(p regmap.PageID) ([]byte, error) {
	if err := c.selectPage(p); err != nil {
		return nil, err
	}
	return c.readPage(p)
}

func (c *Client) telemetry() (regmap.Telemetry, error) {
	var t regmap.Telemetry
	buf, err := c.fetch(regmap.PageTelemetry)
	if err != nil {
		return t, err
	}
	if err := t.Decode(buf); err != nil {
		return t, err
	}
	if t.Version != c.Version {
		return t, fmt.Errorf("%w: %d != %d", ErrVersion, t.Version, c.Version)
	}
	return t, nil
}

// ReadTelemetry выбирает и читает страницу 1 (с проверкой версии), затем страницу 2.
func (c *Client) ReadTelemetry() (Reading, error) {
	var r Reading
	c.Dev.Lock()
	defer c.Dev.Unlock()

	start := c.now()
	t, err := c.telemetry()
	if err != nil {
		return r, err
	}
	r.Telemetry = t
	buf, err := c.fetch(regmap.PageAnalog)
	if err != nil {
		return r, err
	}
	if err := r.Analog.Decode(buf); err != nil {
		return r, err
	}
	r.RTT = c.now().Sub(start)
	return r, nil
}

// ReadStamp выбирает страницу 4, засекая системное время вокруг выбора
// (счётчики фиксируются устройством в момент выбора), затем читает страницу 1.
func (c *Client) ReadStamp() (Stamp, error) {
	var s Stamp
	c.Dev.Lock()
	defer c.Dev.Unlock()

	s.Start = c.now()
	if err := c.selectPage(regmap.PageRaw); err != nil {
		return s, err
	}
	s.End = c.now()
	buf, err := c.readPage(regmap.PageRaw)
	if err != nil {
		return s, err
	}
	if err := s.Raw.Decode(buf); err != nil {
		return s, err
	}
	s.Telemetry, err = c.telemetry()
	return s, err
}

// ReadCalibration читает страницу 3
func (c *Client) ReadCalibration() (regmap.Calibration, error) {
	var cal regmap.Calibration
	c.Dev.Lock()
	defer c.Dev.Unlock()

	buf, err := c.fetch(regmap.PageTCXO)
	if err != nil {
		return cal, err
	}
	err = cal.Decode(buf)
	return cal, err
}

// WriteCalibration записывает байты 0..19 страницы 3 с флагом сохранения во flash.
// Результат сохранения виден в save_status при следующем ReadCalibration.
func (c *Client) WriteCalibration(cal regmap.Calibration) error {
	cal.Save = 1
	img := cal.Encode()
	msg := make([]byte, 0, regmap.TCXOWriteLength+1)
	msg = append(msg, 0)
	msg = append(msg, img[:regmap.TCXOWriteLength]...)

	c.Dev.Lock()
	defer c.Dev.Unlock()
	if err := c.selectPage(regmap.PageTCXO); err != nil {
		return err
	}
	return c.Dev.Write(msg)
}

// SetSourceHz задаёт делитель фронтов канала 1 (0 — значение по умолчанию)
func (c *Client) SetSourceHz(hz uint16) error {
	f, _ := regmap.TelemetryLayout.Lookup("source_hz_ch1")
	var page [regmap.PageSize]byte
	f.Put(page[:], uint32(hz))
	msg := append([]byte{f.Offset}, page[f.Offset:f.Offset+f.Width]...)

	c.Dev.Lock()
	defer c.Dev.Unlock()
	return c.Dev.Write(msg)
}

// ReadRawCounters читает страницу 4
func (c *Client) ReadRawCounters() (regmap.RawCounters, error) {
	var r regmap.RawCounters
	c.Dev.Lock()
	defer c.Dev.Unlock()

	buf, err := c.fetch(regmap.PageRaw)
	if err != nil {
		return r, err
	}
	err = r.Decode(buf)
	return r, err
}

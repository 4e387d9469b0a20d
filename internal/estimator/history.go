package estimator

import "github.com/shiwa/timecard-mini/tcxo-sync/internal/timeutil"

// OffsetHistory — кольцевой буфер накопленного смещения (нс), один слот на секунду.
// Слоты first..last образуют окно; слот first — начало отсчёта.
type OffsetHistory struct {
	buf   []float64
	first int
	last  int
}

// NewOffsetHistory создаёт буфер на n слотов (окно до n−1 секунд).
func NewOffsetHistory(n int) *OffsetHistory {
	if n < 2 {
		n = 2
	}
	return &OffsetHistory{buf: make([]float64, n)}
}

// Add добавляет смещение за очередную секунду; при заполнении буфера вытесняется старейший слот.
func (h *OffsetHistory) Add(offsetNs float64) {
	n := len(h.buf)
	next := (h.last + 1) % n
	if h.first != h.last && h.first == next {
		h.first = (h.first + 1) % n
	}
	h.buf[next] = h.buf[h.last] + offsetNs
	h.last = next
}

// Points — число секунд в окне
func (h *OffsetHistory) Points() int {
	return timeutil.WrapSub(h.last, h.first, len(h.buf))
}

// Cap — максимальная длина окна в секундах
func (h *OffsetHistory) Cap() int { return len(h.buf) - 1 }

// Cumulative — накопленное смещение в последнем слоте, нс
func (h *OffsetHistory) Cumulative() float64 { return h.buf[h.last] }

// PPM — дрейф за последние seconds секунд. ok=false, пока точек меньше seconds.
func (h *OffsetHistory) PPM(seconds int) (ppm float64, ok bool) {
	if seconds <= 0 || seconds > h.Cap() || h.Points() < seconds {
		return 0, false
	}
	start := timeutil.WrapSub(h.last, seconds, len(h.buf))
	us := (h.buf[h.last] - h.buf[start]) / 1000
	return us / float64(seconds), true
}

// Reset опустошает окно; начало отсчёта обнуляется.
func (h *OffsetHistory) Reset() {
	h.first, h.last = 0, 0
	h.buf[0] = 0
}

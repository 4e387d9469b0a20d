// Package averager — скользящие средние фиксированной ёмкости для ADC-каналов.
package averager

// Number — типы, которые умеет усреднять Window
type Number interface {
	~uint16 | ~uint32 | ~float32 | ~float64
}

// Window — буфер фиксированной ёмкости: заполняется до конца, затем сдвигается
// (старейший элемент вытесняется). Среднее считается по заполненной части.
type Window[T Number] struct {
	buf []T
	n   int
}

// NewWindow создаёт окно ёмкости size (size > 0)
func NewWindow[T Number](size int) *Window[T] {
	if size < 1 {
		size = 1
	}
	return &Window[T]{buf: make([]T, size)}
}

// Add добавляет значение
func (w *Window[T]) Add(v T) {
	if w.n < len(w.buf) {
		w.buf[w.n] = v
		w.n++
		return
	}
	copy(w.buf, w.buf[1:])
	w.buf[len(w.buf)-1] = v
}

// Mean — среднее заполненной части; 0 для пустого окна.
// Для целых типов результат округляется вниз.
func (w *Window[T]) Mean() T {
	if w.n == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.buf[:w.n] {
		sum += float64(v)
	}
	return T(sum / float64(w.n))
}

// Len — число накопленных значений
func (w *Window[T]) Len() int { return w.n }

// Cap — размер окна
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full — окно заполнено
func (w *Window[T]) Full() bool { return w.n == len(w.buf) }

// Reset опустошает окно
func (w *Window[T]) Reset() {
	w.n = 0
}

package device

import "github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"

// State — состояние транзакции на шине
type State uint8

const (
	Waiting State = iota
	GetAddr
	GetData
	SendData
	DropData
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case GetAddr:
		return "get-addr"
	case GetData:
		return "get-data"
	case SendData:
		return "send-data"
	case DropData:
		return "drop-data"
	default:
		return "??"
	}
}

// Direction — направление, запрошенное хостом при совпадении адреса
type Direction uint8

const (
	HostWrite Direction = iota
	HostRead
)

// ErrorCode — класс ошибки периферии шины
type ErrorCode uint8

const (
	AckFailure ErrorCode = iota + 1 // NACK от хоста: конец чтения, шина восстановится сама
	BusError
	ArbitrationLost
	Overrun
	Timeout
)

// EventKind — прерывание периферии шины
type EventKind uint8

const (
	AddrMatch EventKind = iota
	RxComplete
	TxComplete
	ListenComplete
	BusFault
	Abort
)

// Event — вход конечного автомата.
type Event struct {
	Kind EventKind
	Dir  Direction // для AddrMatch
	Data byte      // для RxComplete
	Code ErrorCode // для BusFault
}

// Op — следующая операция, которую должна запустить периферия
type Op uint8

const (
	OpNone Op = iota
	// OpReceive — принять один байт
	OpReceive
	// OpTransmitPage — передать снимок текущей страницы
	OpTransmitPage
	// OpTransmitFiller — передать один байт-заполнитель (0)
	OpTransmitFiller
	// OpListen — снова слушать адрес
	OpListen
)

// Action — выход конечного автомата.
type Action struct {
	Op    Op
	Store bool // записать Data по позиции Pos
	Pos   uint8
	Data  byte
}

// Transfer — состояние автомата и курсор записи
type Transfer struct {
	State    State
	Position uint8
}

// Transition — чистая функция переходов: (состояние, событие) → (состояние, действие).
func Transition(t Transfer, ev Event) (Transfer, Action) {
	switch ev.Kind {
	case AddrMatch:
		if ev.Dir == HostWrite {
			return Transfer{State: GetAddr}, Action{Op: OpReceive}
		}
		t.State = SendData
		return t, Action{Op: OpTransmitPage}

	case RxComplete:
		var a Action
		switch t.State {
		case GetAddr:
			t.Position = ev.Data
			t.State = GetData
		case GetData:
			a = Action{Store: true, Pos: t.Position, Data: ev.Data}
			t.Position++
		}
		a.Op = OpReceive
		if t.Position > regmap.PageSize {
			t.State = DropData
		}
		return t, a

	case TxComplete:
		if t.State == DropData {
			return t, Action{}
		}
		return t, Action{Op: OpTransmitFiller}

	case ListenComplete:
		return Transfer{State: Waiting}, Action{Op: OpListen}

	case BusFault:
		t.State = DropData
		if ev.Code != AckFailure {
			return t, Action{Op: OpListen}
		}
		return t, Action{}

	case Abort:
		t.State = DropData
		return t, Action{}
	}
	return t, Action{}
}

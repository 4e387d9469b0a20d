package device

// Reply — что периферия шины должна сделать после обработки события.
type Reply struct {
	Op Op
	Tx []byte // данные для OpTransmitPage / OpTransmitFiller
}

var filler = []byte{0}

// HandleBus обрабатывает прерывание периферии шины.
func (d *Device) HandleBus(ev Event) Reply {
	s := disableInterrupts()
	defer restoreInterrupts(s)

	d.counters.count(ev.Kind)
	next, a := Transition(d.xfer, ev)
	d.xfer = next
	if a.Store {
		d.receive(a.Pos, a.Data)
	}

	switch a.Op {
	case OpTransmitPage:
		tx := d.tx
		return Reply{Op: a.Op, Tx: tx[:]}
	case OpTransmitFiller:
		return Reply{Op: a.Op, Tx: filler}
	default:
		return Reply{Op: a.Op}
	}
}

// State — текущее состояние автомата шины
func (d *Device) State() State {
	s := disableInterrupts()
	defer restoreInterrupts(s)
	return d.xfer.State
}

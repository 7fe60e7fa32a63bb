package content

// HistoryDepth bounds the undo stack.
const HistoryDepth = 100

type history struct {
	undo []State
	redo []State
}

func (h *history) record(prev State) {
	h.undo = append(h.undo, prev)
	if len(h.undo) > HistoryDepth {
		h.undo = h.undo[len(h.undo)-HistoryDepth:]
	}
	h.redo = nil
}

func (h *history) back(cur State) (State, bool) {
	if len(h.undo) == 0 {
		return cur, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, cur)
	return prev, true
}

func (h *history) forward(cur State) (State, bool) {
	if len(h.redo) == 0 {
		return cur, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cur)
	return next, true
}

func (h *history) reset() {
	h.undo, h.redo = nil, nil
}

package answer

import "sync"

// Turn is one answered question.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// History keeps the most recent turns of a conversation, dropping the
// oldest once the cap is reached. A cap of zero disables history.
type History struct {
	mu    sync.Mutex
	max   int
	turns []Turn
}

func NewHistory(max int) *History {
	if max < 0 {
		max = 0
	}
	return &History{max: max}
}

func (h *History) Add(question, answer string) {
	if h == nil || h.max == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, Turn{Question: question, Answer: answer})
	if over := len(h.turns) - h.max; over > 0 {
		h.turns = append(h.turns[:0], h.turns[over:]...)
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []Turn {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...)
}

func (h *History) Reset() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.turns = nil
	h.mu.Unlock()
}

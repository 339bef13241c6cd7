package domain

// Progress is a single step notification emitted by long-running flows.
// Index is 1-based; Total is the number of steps in the current phase.
type Progress struct {
	Step   string `json:"step"`
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Detail string `json:"detail,omitempty"`
	TxHash string `json:"tx_hash,omitempty"`
}

// ProgressFunc receives progress synchronously from the flow that emits it.
type ProgressFunc func(Progress)

// Emit calls f when it is non-nil.
func (f ProgressFunc) Emit(p Progress) {
	if f != nil {
		f(p)
	}
}

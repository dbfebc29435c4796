package risk

import "encoding/json"

// Snapshot captures the full swap context at the moment a ManualReview
// decision is made, so an operator resolving the review later sees exactly
// what the scorer saw rather than the swap's current (possibly further
// along) state.
func Snapshot(swapCtx SwapContext, decision Decision) json.RawMessage {
	payload := struct {
		SwapContext SwapContext `json:"swap_context"`
		Score       float64     `json:"score"`
		Reason      string      `json:"reason"`
	}{
		SwapContext: swapCtx,
		Score:       decision.Score,
		Reason:      decision.Reason,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// SwapContext and Decision contain only marshalable fields; this
		// can't fail in practice.
		return json.RawMessage(`{}`)
	}
	return data
}

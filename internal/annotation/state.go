package annotation

import (
	"encoding/json"
	"fmt"
)

// State is the persisted snapshot of a store, keyed by page URL in storage.
type State struct {
	Elements         []*Annotation `json:"elements"`
	NextNumber       int           `json:"nextNumber"`
	FocusedElementID string        `json:"focusedElementId"`
	FocusedSubNumber int           `json:"focusedSubNumber"`
}

// State captures the store for persistence.
func (s *Store) State() State {
	return State{
		Elements:         s.Elements(),
		NextNumber:       s.nextNumber,
		FocusedElementID: s.focusedID,
		FocusedSubNumber: s.focusedSubNumber,
	}
}

// SetCounters applies persisted counters after the elements have been
// restored. Focus is only re-entered when the focused annotation survived
// the restore.
func (s *Store) SetCounters(st State) {
	if st.NextNumber > 0 {
		s.nextNumber = st.NextNumber
	}
	if st.FocusedElementID != "" && s.byID[st.FocusedElementID] != nil {
		s.focusedID = st.FocusedElementID
		if st.FocusedSubNumber > 0 {
			s.focusedSubNumber = st.FocusedSubNumber
		}
	}
}

// DecodeState parses a snapshot payload, tolerating missing or legacy
// fields: absent values default to an empty list, counter 1, no focus.
func DecodeState(payload []byte) (State, error) {
	st := State{NextNumber: 1, FocusedSubNumber: 1}
	if len(payload) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{NextNumber: 1, FocusedSubNumber: 1}, fmt.Errorf("annotation: decode state: %w", err)
	}
	if st.NextNumber < 1 {
		st.NextNumber = 1
	}
	if st.FocusedSubNumber < 1 {
		st.FocusedSubNumber = 1
	}
	return st, nil
}

// EncodeState serialises a snapshot payload.
func EncodeState(st State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("annotation: encode state: %w", err)
	}
	return data, nil
}

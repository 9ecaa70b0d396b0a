// SPDX-License-Identifier: MIT

package progress

import "fmt"

// View is what a progress screen shows for the current position.
type View struct {
	// Position is 1-based; 0 when the collection is empty.
	Position int `json:"position"`
	Of       int `json:"of"`
	// Item is the current item index, -1 when there is none.
	Item int `json:"item"`
	// Answer is the recorded choice for Item, if any.
	Answer    *int    `json:"answer,omitempty"`
	Correct   int     `json:"correct"`
	Answered  int     `json:"answered"`
	Total     int     `json:"total"`
	Remaining int     `json:"remaining"`
	Percent   float64 `json:"percent"`
}

// Label renders the position as "Q3 of 10".
func (v View) Label() string {
	return fmt.Sprintf("Q%d of %d", v.Position, v.Of)
}

// Summary renders the counters as "Correct 2 / 3 • 7 remaining".
func (v View) Summary() string {
	return fmt.Sprintf("Correct %d / %d • %d remaining", v.Correct, v.Answered, v.Remaining)
}

// View derives the current view from the state.
func (s *Session) View() View {
	return ViewOf(s.State())
}

// ViewOf derives a view from a state snapshot.
func ViewOf(st State) View {
	v := View{
		Item:      -1,
		Of:        len(st.Order),
		Correct:   st.Correct,
		Answered:  st.Answered,
		Total:     st.Total,
		Remaining: st.Total - st.Answered,
	}
	if st.Total > 0 {
		v.Percent = 100 * float64(st.Answered) / float64(st.Total)
	}
	if len(st.Order) > 0 {
		v.Position = st.Cursor + 1
		v.Item = st.Order[st.Cursor]
		if choice, ok := st.Answers[v.Item]; ok {
			v.Answer = &choice
		}
	}
	return v
}

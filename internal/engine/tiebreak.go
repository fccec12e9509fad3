package engine

import (
	"fmt"

	appErr "jonglog-service/pkg/errors"
)

// TieBreak is the state of the interactive tie-break protocol. It is owned
// by the caller for the lifetime of one match submission; every transition
// returns a new value and leaves the receiver untouched.
type TieBreak struct {
	Pending  [][]int  `json:"pending"`
	Current  []int    `json:"current"`
	Selected []int    `json:"selected"`
	Priority Priority `json:"priority,omitempty"`
}

// StartTieBreak opens the protocol on the first of groups. priority carries
// the entries of groups resolved in earlier rounds.
func StartTieBreak(groups [][]int, priority Priority) (TieBreak, error) {
	if len(groups) == 0 || len(groups[0]) < 2 {
		return TieBreak{}, fmt.Errorf("%w: no tied group to resolve", appErr.ErrTieBreakState)
	}
	pending := make([][]int, len(groups))
	for i, g := range groups {
		pending[i] = append([]int(nil), g...)
	}
	return TieBreak{
		Pending:  pending,
		Current:  append([]int(nil), groups[0]...),
		Selected: []int{},
		Priority: priority.Clone(),
	}, nil
}

// Complete reports whether every member of the current group is selected.
func (t TieBreak) Complete() bool {
	return len(t.Current) > 0 && len(t.Selected) == len(t.Current)
}

// Remaining lists the members of the current group not yet selected.
func (t TieBreak) Remaining() []int {
	out := make([]int, 0, len(t.Current))
	for _, idx := range t.Current {
		if !containsIndex(t.Selected, idx) {
			out = append(out, idx)
		}
	}
	return out
}

// SelectNext appends index to the selection order. resolved is true when the
// selection completed the group; next.Priority then holds the merged
// override to pass back into Resolve.
func (t TieBreak) SelectNext(index int) (next TieBreak, resolved bool, err error) {
	if len(t.Current) == 0 {
		return t, false, fmt.Errorf("%w: protocol not started", appErr.ErrTieBreakState)
	}
	if t.Complete() {
		return t, false, fmt.Errorf("%w: group already resolved", appErr.ErrTieBreakState)
	}
	if !containsIndex(t.Current, index) {
		return t, false, fmt.Errorf("%w: player %d is not in the tied group", appErr.ErrInvalidSelection, index)
	}
	if containsIndex(t.Selected, index) {
		return t, false, fmt.Errorf("%w: player %d is already selected", appErr.ErrInvalidSelection, index)
	}

	next = t.clone()
	next.Selected = append(next.Selected, index)
	if !next.Complete() {
		return next, false, nil
	}

	merged, err := next.mergeSelection()
	if err != nil {
		return t, false, err
	}
	next.Priority = merged
	return next, true, nil
}

// Reset clears the selection of the current group.
func (t TieBreak) Reset() TieBreak {
	next := t.clone()
	next.Selected = []int{}
	return next
}

// Advance feeds a re-resolution back into the protocol. done is true when
// res carries outcomes; otherwise the protocol restarts on res.TieGroups.
func (t TieBreak) Advance(res *Resolution) (next TieBreak, done bool, err error) {
	if !res.NeedsTieBreak() {
		return TieBreak{Priority: t.Priority.Clone()}, true, nil
	}
	next, err = StartTieBreak(res.TieGroups, t.Priority)
	return next, false, err
}

// mergeSelection gives the first selected player N, the next N-1 and so on.
func (t TieBreak) mergeSelection() (Priority, error) {
	merged := t.Priority.Clone()
	n := len(t.Selected)
	for i, idx := range t.Selected {
		if _, exists := merged[idx]; exists {
			return nil, fmt.Errorf("%w: priority of player %d already assigned", appErr.ErrTieBreakState, idx)
		}
		merged[idx] = n - i
	}
	return merged, nil
}

func (t TieBreak) clone() TieBreak {
	next := TieBreak{
		Pending:  make([][]int, len(t.Pending)),
		Current:  append([]int(nil), t.Current...),
		Selected: append([]int{}, t.Selected...),
		Priority: t.Priority.Clone(),
	}
	for i, g := range t.Pending {
		next.Pending[i] = append([]int(nil), g...)
	}
	return next
}

func containsIndex(list []int, idx int) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}

// Submission is a match entry waiting on the tie-break protocol.
type Submission struct {
	Inputs []Input  `json:"inputs"`
	Rules  Rules    `json:"rules"`
	Mode   Mode     `json:"mode"`
	Tie    TieBreak `json:"tie"`
}

// Begin resolves inputs. If ties remain, the returned submission is waiting
// for selections and the resolution only carries tie groups.
func Begin(inputs []Input, rules Rules, mode Mode) (*Resolution, *Submission, error) {
	res, err := Resolve(inputs, rules, mode, nil)
	if err != nil {
		return nil, nil, err
	}
	if !res.NeedsTieBreak() {
		return res, nil, nil
	}
	tie, err := StartTieBreak(res.TieGroups, nil)
	if err != nil {
		return nil, nil, err
	}
	return res, &Submission{
		Inputs: append([]Input(nil), inputs...),
		Rules:  rules.Normalize(),
		Mode:   mode,
		Tie:    tie,
	}, nil
}

// Select applies one selection. Once the current group completes the engine
// runs again with the cumulative override; the final resolution is returned
// when no ties remain, otherwise the submission restarts on the new groups.
func (s Submission) Select(index int) (Submission, *Resolution, error) {
	tie, resolved, err := s.Tie.SelectNext(index)
	if err != nil {
		return s, nil, err
	}
	if !resolved {
		s.Tie = tie
		return s, nil, nil
	}

	res, err := Resolve(s.Inputs, s.Rules, s.Mode, tie.Priority)
	if err != nil {
		return s, nil, err
	}
	next, done, err := tie.Advance(res)
	if err != nil {
		return s, nil, err
	}
	s.Tie = next
	if done {
		return s, res, nil
	}
	return s, nil, nil
}

func (s Submission) Reset() Submission {
	s.Tie = s.Tie.Reset()
	return s
}

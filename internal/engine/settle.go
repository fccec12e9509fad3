package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	appErr "jonglog-service/pkg/errors"
)

// Expense is a shared cost advanced by Payer on behalf of Targets.
type Expense struct {
	Note    string   `json:"note" yaml:"note"`
	Payer   string   `json:"payer" yaml:"payer"`
	Amount  int64    `json:"amount" yaml:"amount"`
	Targets []string `json:"targets" yaml:"targets"`
}

// Line is one player's row of a settlement.
type Line struct {
	Name        string  `json:"name"`
	GameScore   float64 `json:"gameScore"`
	GameBalance int64   `json:"gameBalance"`
	Paid        int64   `json:"paid"`
	Share       int64   `json:"share"`
	Final       int64   `json:"final"`
}

type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type Settlement struct {
	Lines     []Line     `json:"lines"`
	Transfers []Transfer `json:"transfers"`
}

// ValidateExpense rejects expenses the settlement cannot split cleanly.
func ValidateExpense(players []string, e Expense) error {
	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", appErr.ErrInvalidExpense)
	}
	known := make(map[string]struct{}, len(players))
	for _, p := range players {
		known[p] = struct{}{}
	}
	if _, ok := known[e.Payer]; !ok {
		return fmt.Errorf("%w: payer %q is not in the session", appErr.ErrInvalidExpense, e.Payer)
	}
	if len(e.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", appErr.ErrInvalidExpense)
	}
	seen := make(map[string]struct{}, len(e.Targets))
	for _, t := range e.Targets {
		if _, ok := known[t]; !ok {
			return fmt.Errorf("%w: target %q is not in the session", appErr.ErrInvalidExpense, t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: target %q listed twice", appErr.ErrInvalidExpense, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// SplitExpense divides amount over k targets. Every target gets amount/k and
// the remainder goes one unit at a time to the first targets in order.
func SplitExpense(amount int64, k int) []int64 {
	if k <= 0 {
		return nil
	}
	per := amount / int64(k)
	rem := amount % int64(k)
	shares := make([]int64, k)
	for i := range shares {
		shares[i] = per
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}

// Settle computes every player's net balance and the transfers that clear
// them. Matching is greedy, largest debtor against largest creditor; it is
// deterministic for a given player order but not a minimum-count solver.
func Settle(players []string, matches [][]Outcome, expenses []Expense, rate float64) (*Settlement, error) {
	if len(players) == 0 {
		return nil, fmt.Errorf("%w: no players", appErr.ErrInvalidSettlement)
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: rate must be a non-negative number", appErr.ErrInvalidSettlement)
	}

	lines := make([]Line, len(players))
	pos := make(map[string]int, len(players))
	for i, p := range players {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: player %d has no name", appErr.ErrInvalidSettlement, i+1)
		}
		if _, dup := pos[p]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", appErr.ErrInvalidSettlement, p)
		}
		pos[p] = i
		lines[i].Name = p
	}

	totals := make([]float64, len(players))
	for _, m := range matches {
		for _, o := range m {
			if i, ok := pos[o.Name]; ok {
				totals[i] += o.FinalScore
			}
		}
	}
	for i := range lines {
		lines[i].GameScore = RoundScore(totals[i])
		if rate > 0 {
			lines[i].GameBalance = int64(math.Round(lines[i].GameScore * rate * 10))
		}
	}

	for _, e := range expenses {
		if i, ok := pos[e.Payer]; ok {
			lines[i].Paid += e.Amount
		}
		targets := make([]int, 0, len(e.Targets))
		for _, t := range e.Targets {
			if i, ok := pos[t]; ok {
				targets = append(targets, i)
			}
		}
		for k, share := range SplitExpense(e.Amount, len(targets)) {
			lines[targets[k]].Share += share
		}
	}

	for i := range lines {
		lines[i].Final = lines[i].GameBalance + lines[i].Paid - lines[i].Share
	}

	return &Settlement{Lines: lines, Transfers: matchTransfers(lines)}, nil
}

type balance struct {
	name   string
	amount int64
}

func matchTransfers(lines []Line) []Transfer {
	var debtors, creditors []balance
	for _, l := range lines {
		switch {
		case l.Final < 0:
			debtors = append(debtors, balance{name: l.Name, amount: -l.Final})
		case l.Final > 0:
			creditors = append(creditors, balance{name: l.Name, amount: l.Final})
		}
	}
	sort.SliceStable(debtors, func(a, b int) bool { return debtors[a].amount > debtors[b].amount })
	sort.SliceStable(creditors, func(a, b int) bool { return creditors[a].amount > creditors[b].amount })

	transfers := []Transfer{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]
		amount := d.amount
		if c.amount < amount {
			amount = c.amount
		}
		if amount > 0 {
			transfers = append(transfers, Transfer{From: d.name, To: c.name, Amount: amount})
		}
		d.amount -= amount
		c.amount -= amount
		if d.amount < 1 {
			i++
		}
		if c.amount < 1 {
			j++
		}
	}
	return transfers
}

// Residual applies the transfers to the final balances and returns what is
// left per player. A balanced settlement leaves zero everywhere.
func (s *Settlement) Residual() map[string]int64 {
	out := make(map[string]int64, len(s.Lines))
	for _, l := range s.Lines {
		out[l.Name] = l.Final
	}
	for _, t := range s.Transfers {
		out[t.From] += t.Amount
		out[t.To] -= t.Amount
	}
	return out
}

// Total sums the final balances; zero unless rounding of a fractional rate
// leaves a remainder.
func (s *Settlement) Total() int64 {
	var sum int64
	for _, l := range s.Lines {
		sum += l.Final
	}
	return sum
}

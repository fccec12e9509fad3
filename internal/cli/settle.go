package cli

import (
	"fmt"
	"io"

	"jonglog-service/internal/engine"

	"github.com/spf13/cobra"
)

// SessionFile is a whole session: the tables played and shared costs.
type SessionFile struct {
	Players  []string         `yaml:"players"`
	Rate     float64          `yaml:"rate"`
	Rules    *engine.Rules    `yaml:"rules"`
	Matches  []TableFile      `yaml:"matches"`
	Expenses []engine.Expense `yaml:"expenses"`
}

func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "settle <session.yaml>",
		Short:        "Settle a session and list the transfers that clear it",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var file SessionFile
			if err := readYAML(cmd, args[0], &file); err != nil {
				return err
			}
			st, err := settleSession(file)
			if err != nil {
				return err
			}
			return writeResult(cmd, rootOpts, st, func(w io.Writer) {
				printSettlement(w, st)
			})
		},
	}
	return cmd
}

// settleSession resolves every table with the session rules; a table
// without a table-level rules block inherits them.
func settleSession(file SessionFile) (*engine.Settlement, error) {
	rules := engine.DefaultRules()
	if file.Rules != nil {
		rules = *file.Rules
	}

	matches := make([][]engine.Outcome, 0, len(file.Matches))
	for i, table := range file.Matches {
		out, err := resolveTable(table, rules)
		if err != nil {
			return nil, fmt.Errorf("match %d: %w", i+1, err)
		}
		if len(out.TieGroups) > 0 {
			return nil, fmt.Errorf("match %d: tied players %v need a priority map", i+1, out.TieGroups)
		}
		matches = append(matches, out.Outcomes)
	}
	for i, e := range file.Expenses {
		if e.Note == "" {
			file.Expenses[i].Note = "その他"
		}
		if err := engine.ValidateExpense(file.Players, e); err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
	}
	return engine.Settle(file.Players, matches, file.Expenses, file.Rate)
}

func printSettlement(w io.Writer, st *engine.Settlement) {
	fmt.Fprintf(w, "%-12s %8s %8s %8s %8s %8s\n", "player", "score", "game", "paid", "share", "final")
	for _, l := range st.Lines {
		fmt.Fprintf(w, "%-12s %+8.1f %8d %8d %8d %8d\n", l.Name, l.GameScore, l.GameBalance, l.Paid, l.Share, l.Final)
	}
	if len(st.Transfers) == 0 {
		fmt.Fprintln(w, "\nnothing to transfer")
		return
	}
	fmt.Fprintln(w)
	for _, t := range st.Transfers {
		fmt.Fprintf(w, "%s -> %s  %d\n", t.From, t.To, t.Amount)
	}
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"jonglog-service/internal/engine"

	"github.com/spf13/cobra"
)

// TableFile is one table's scores.
//
//	mode: raw
//	inputs:
//	  - {name: A, score: 35000, seatWind: east}
//	priority: {0: 2, 1: 1}
type TableFile struct {
	Rules    *engine.Rules   `yaml:"rules"`
	Mode     string          `yaml:"mode"`
	Inputs   []engine.Input  `yaml:"inputs"`
	Priority engine.Priority `yaml:"priority"`
}

// ResolveOutput carries either outcomes or the groups still tied.
type ResolveOutput struct {
	Outcomes  []engine.Outcome `json:"outcomes,omitempty"`
	TieGroups [][]int          `json:"tieGroups,omitempty"`
}

func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <table.yaml>",
		Short: "Compute ranks and final scores of one table",
		Long: `Compute ranks and final scores of one table.

When players tie and no seat winds or priority settle it, the tied groups
are printed instead; add a priority map (player index to weight, higher
ranks first) and run again.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var file TableFile
			if err := readYAML(cmd, args[0], &file); err != nil {
				return err
			}
			out, err := resolveTable(file, engine.DefaultRules())
			if err != nil {
				return err
			}
			return writeResult(cmd, rootOpts, out, func(w io.Writer) {
				printResolve(w, file.Inputs, out)
			})
		},
	}
	return cmd
}

func resolveTable(file TableFile, fallback engine.Rules) (*ResolveOutput, error) {
	rules := fallback
	if file.Rules != nil {
		rules = *file.Rules
	}
	mode, err := engine.ParseMode(file.Mode)
	if err != nil {
		return nil, err
	}
	inputs := make([]engine.Input, len(file.Inputs))
	for i, in := range file.Inputs {
		wind, err := engine.ParseSeatWind(string(in.SeatWind))
		if err != nil {
			return nil, err
		}
		in.SeatWind = wind
		inputs[i] = in
	}

	res, err := engine.Resolve(inputs, rules, mode, file.Priority)
	if err != nil {
		return nil, err
	}
	if res.NeedsTieBreak() {
		return &ResolveOutput{TieGroups: res.TieGroups}, nil
	}
	return &ResolveOutput{Outcomes: res.Outcomes}, nil
}

func printResolve(w io.Writer, inputs []engine.Input, out *ResolveOutput) {
	if len(out.TieGroups) > 0 {
		for _, g := range out.TieGroups {
			names := make([]string, len(g))
			for i, idx := range g {
				names[i] = fmt.Sprintf("%d:%s", idx, inputs[idx].Name)
			}
			fmt.Fprintf(w, "tied: %s\n", strings.Join(names, " "))
		}
		fmt.Fprintln(w, "add a priority map to break the ties")
		return
	}
	for _, o := range out.Outcomes {
		fmt.Fprintf(w, "%d  %-12s %6d  %+7.1f\n", o.Rank, o.Name, o.RawScore, o.FinalScore)
	}
}

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

// NewEscalationRuleCommand manages the local escalation rule catalogue. It
// works without a server and without a config file.
func NewEscalationRuleCommand() *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:     "escalation-rule",
		Aliases: []string{"escalation-rules", "esc"},
		Short:   "Manage the local escalation rule catalogue",
	}
	cmd.PersistentFlags().StringVar(&rulesFile, "rules-file", "", "Escalation rules file (defaults to the rules-file setting)")

	open := func(cmd *cobra.Command) (*runtimeState, *escalation.Store, error) {
		rt, err := getRuntime(cmd)
		if err != nil {
			return nil, nil, err
		}
		store := escalation.NewStore(rt.RulesPath(rulesFile))
		if err := store.Load(); err != nil {
			return nil, nil, err
		}
		return rt, store, nil
	}

	cmd.AddCommand(
		newEscalationListCommand(open),
		newEscalationGetCommand(open),
		newEscalationAddCommand(open),
		newEscalationUpdateCommand(open),
		newEscalationDeleteCommand(open),
		newEscalationStatusCommand(open, "activate", "Activate a rule", escalation.StatusActive),
		newEscalationStatusCommand(open, "deactivate", "Deactivate a rule", escalation.StatusInactive),
		newEscalationStatsCommand(open),
	)
	return cmd
}

type storeOpener func(cmd *cobra.Command) (*runtimeState, *escalation.Store, error)

func newEscalationListCommand(open storeOpener) *cobra.Command {
	var (
		f     filter.EscalationRuleFilter
		flags listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalation rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			return renderList(rt, f.Apply(store.List()), flags, output.WriteEscalationRuleTable, nil)
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "Match name, description or service type")
	cmd.Flags().StringVar(&f.Status, "status", "", "active, inactive, draft or all")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "P1, P2, P3, P4 or all")
	flags.register(cmd)
	return cmd
}

func newEscalationGetCommand(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a rule and its levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			rule, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return renderEscalationRule(rt, rule)
		},
	}
}

func renderEscalationRule(rt *runtimeState, rule *escalation.Rule) error {
	return renderObject(rt, rule, func(w io.Writer) {
		output.WriteKeyValues(w, []output.KV{
			{Key: "ID", Value: rule.ID},
			{Key: "Name", Value: rule.Name},
			{Key: "Status", Value: string(rule.Status)},
			{Key: "Priority", Value: string(rule.Priority)},
			{Key: "Service type", Value: dashIfEmpty(rule.ServiceType)},
			{Key: "Trigger", Value: dashIfEmpty(rule.TriggerCondition)},
			{Key: "Updated", Value: output.Age(rule.UpdatedAt)},
			{Key: "Description", Value: dashIfEmpty(rule.Description)},
		})
		_, _ = fmt.Fprintln(w)
		output.WriteEscalationLevelTable(w, rule.Levels)
	})
}

func newEscalationAddCommand(open storeOpener) *cobra.Command {
	var (
		file   string
		status string
	)
	cmd := &cobra.Command{
		Use:   "add -f FILE",
		Short: "Add a rule from a YAML or JSON manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rule escalation.Rule
			if err := readManifest(cmd, file, &rule); err != nil {
				return err
			}
			if status != "" {
				rule.Status = escalation.Status(status)
			}
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			added, err := store.Add(rule)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderEscalationRule(rt, added)
			}
			printf(rt, "Added escalation rule %s (%s)\n", added.ID, added.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Rule manifest, - for stdin")
	cmd.Flags().StringVar(&status, "status", "", "Override the manifest status")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newEscalationUpdateCommand(open storeOpener) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update ID -f FILE",
		Short: "Replace a rule with a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			current, err := store.Get(args[0])
			if err != nil {
				return err
			}
			rule := *current
			if err := readManifest(cmd, file, &rule); err != nil {
				return err
			}
			if rule.ID != current.ID {
				return errors.New("the rule id cannot be changed")
			}
			updated, err := store.Update(rule)
			if err != nil {
				return err
			}
			return renderEscalationRule(rt, updated)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Rule manifest, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newEscalationDeleteCommand(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			printf(rt, "Deleted escalation rule %s\n", args[0])
			return nil
		},
	}
}

func newEscalationStatusCommand(open storeOpener, use, short string, status escalation.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			rule, err := store.SetStatus(args[0], status)
			if err != nil {
				return err
			}
			printf(rt, "Escalation rule %s is %s\n", rule.ID, rule.Status)
			return nil
		},
	}
}

func newEscalationStatsCommand(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count rules per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, store, err := open(cmd)
			if err != nil {
				return err
			}
			stats := filter.CountEscalationRules(store.List())
			return renderObject(rt, stats, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Total", Value: output.Count(stats.Total)},
					{Key: "Active", Value: output.Count(stats.Active)},
					{Key: "Draft", Value: output.Count(stats.Draft)},
					{Key: "Inactive", Value: output.Count(stats.Inactive)},
				})
			})
		},
	}
}

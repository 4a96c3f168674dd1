package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
	"github.com/telekom/itsmctl/pkg/slamonitor"
)

func NewSLACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "SLA definitions, violations, compliance and alerting",
	}
	cmd.AddCommand(
		newSLADefinitionsCommand(),
		newSLAViolationsCommand(),
		newSLAReportCommand(),
		newSLACheckCommand(),
		newSLAStatsCommand(),
		newSLAMonitoringCommand(),
		newSLAMetricsCommand(),
		newSLAAlertsCommand(),
		newSLATriggerCommand(),
		newSLAAlertRulesCommand(),
		newSLAAlertHistoryCommand(),
	)
	return cmd
}

func newSLADefinitionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "definitions",
		Aliases: []string{"definition", "defs"},
		Short:   "Manage SLA definitions",
	}

	var listOpts listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List SLA definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			defs, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.SLADefinition, int, error) {
				resp, err := c.SLA().ListDefinitions(ctx, client.PageRequest{Page: page, PageSize: size})
				if err != nil {
					return nil, 0, err
				}
				return resp.Items, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, defs, listOpts, output.WriteSLADefinitionTable, nil)
		},
	}
	listOpts.register(list)

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show an SLA definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			def, err := c.SLA().GetDefinition(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderSLADefinition(rt, def)
		},
	}

	var createFlags slaDefinitionFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an SLA definition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := createFlags.request(cmd)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			def, err := c.SLA().CreateDefinition(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderSLADefinition(rt, def)
		},
	}
	createFlags.register(create)

	var updateFlags slaDefinitionFlags
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of an SLA definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req, err := updateFlags.request(cmd)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			def, err := c.SLA().UpdateDefinition(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return renderSLADefinition(rt, def)
		},
	}
	updateFlags.register(update)

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an SLA definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if err := c.SLA().DeleteDefinition(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Deleted SLA definition %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func renderSLADefinition(rt *runtimeState, def *client.SLADefinition) error {
	return renderObject(rt, def, func(w io.Writer) {
		output.WriteSLADefinitionTable(w, []client.SLADefinition{*def})
	})
}

type slaDefinitionFlags struct {
	file         string
	name         string
	description  string
	serviceType  string
	priority     string
	response     int
	resolution   int
	availability float64
	active       bool
}

func (f *slaDefinitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.name, "name", "", "Definition name")
	cmd.Flags().StringVar(&f.description, "description", "", "Description")
	cmd.Flags().StringVar(&f.serviceType, "service-type", "", "Service type the SLA applies to")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().IntVar(&f.response, "response-minutes", 0, "Response time target in minutes")
	cmd.Flags().IntVar(&f.resolution, "resolution-minutes", 0, "Resolution time target in minutes")
	cmd.Flags().Float64Var(&f.availability, "availability", 0, "Availability target in percent")
	cmd.Flags().BoolVar(&f.active, "active", true, "Whether the definition is active")
}

func (f *slaDefinitionFlags) request(cmd *cobra.Command) (client.SLADefinitionRequest, error) {
	var req client.SLADefinitionRequest
	if f.file != "" {
		if err := readManifest(cmd, f.file, &req); err != nil {
			return req, err
		}
	}
	set := cmd.Flags().Changed
	if set("name") {
		req.Name = f.name
	}
	if set("description") {
		req.Description = f.description
	}
	if set("service-type") {
		req.ServiceType = f.serviceType
	}
	if set("priority") {
		req.Priority = client.Priority(f.priority)
	}
	if set("response-minutes") {
		req.ResponseTimeMinutes = f.response
	}
	if set("resolution-minutes") {
		req.ResolutionTimeMinutes = f.resolution
	}
	if set("availability") {
		req.AvailabilityTarget = f.availability
	}
	if set("active") {
		req.IsActive = boolPtr(f.active)
	}
	return req, nil
}

type violationFilterFlags struct {
	severity string
	vtype    string
	status   string
	from     string
	to       string
	search   string
}

func (f *violationFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.severity, "severity", "", "low, medium, high, critical or all")
	cmd.Flags().StringVar(&f.vtype, "type", "", "Violation type, e.g. response_time")
	cmd.Flags().StringVar(&f.status, "status", "", "open, resolved or all")
	cmd.Flags().StringVar(&f.from, "from", "", "Only violations created after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Only violations created before this time")
	cmd.Flags().StringVar(&f.search, "search", "", "Match ticket id, type or description")
}

func (f violationFilterFlags) filter() (filter.ViolationFilter, error) {
	from, err := parseTime(f.from)
	if err != nil {
		return filter.ViolationFilter{}, err
	}
	to, err := parseTime(f.to)
	if err != nil {
		return filter.ViolationFilter{}, err
	}
	return filter.ViolationFilter{
		Severity: f.severity,
		Type:     f.vtype,
		Status:   f.status,
		From:     from,
		To:       to,
		Search:   f.search,
	}, nil
}

func newSLAViolationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "violations",
		Aliases: []string{"violation"},
		Short:   "Inspect and resolve SLA violations",
	}
	cmd.AddCommand(
		newViolationListCommand(),
		newViolationUpdateCommand(),
		newViolationResolveCommand(),
		newViolationBatchUpdateCommand(),
		newViolationWatchCommand(),
	)
	return cmd
}

func newViolationListCommand() *cobra.Command {
	var (
		ff       violationFilterFlags
		flags    listFlags
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List SLA violations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			// The server only narrows by status; everything else is filtered locally.
			monitor := &slamonitor.Monitor{
				Source:   c.SLA(),
				Interval: interval,
				Status:   serverSelector(f.Status),
				Filter:   f,
			}
			render := func() error {
				if err := monitor.Poll(cmd.Context()); err != nil {
					return err
				}
				snap := monitor.Snapshot()
				if err := renderList(rt, snap.Violations, flags, output.WriteViolationTable, output.WriteViolationTableWide); err != nil {
					return err
				}
				if !rt.OutputFormat().Structured() {
					printf(rt, "%d open, %d resolved, %d critical\n", snap.Stats.Open, snap.Stats.Resolved, snap.Stats.Critical)
				}
				return nil
			}
			if !watch {
				return render()
			}
			return pollLoop(cmd.Context(), interval, func() error {
				if !rt.OutputFormat().Structured() {
					printf(rt, "\n%s\n", time.Now().UTC().Format(time.RFC3339))
				}
				if err := render(); err != nil {
					_, _ = fmt.Fprintf(rt.ErrWriter(), "Warning: %v\n", err)
				}
				return nil
			})
		},
	}
	ff.register(cmd)
	flags.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-list on every interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", slamonitor.DefaultInterval, "Polling interval for --watch")
	return cmd
}

// pollLoop calls fn immediately and then on every tick until ctx is done or
// fn fails.
func pollLoop(ctx context.Context, interval time.Duration, fn func() error) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newViolationUpdateCommand() *cobra.Command {
	var (
		resolved bool
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Set the resolution state and notes of a violation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if err := c.SLA().UpdateViolation(cmd.Context(), id, client.ViolationUpdate{IsResolved: resolved, Notes: notes}); err != nil {
				return err
			}
			printf(rt, "Updated violation %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Mark the violation resolved")
	cmd.Flags().StringVar(&notes, "notes", "", "Handling notes")
	return cmd
}

func newViolationResolveCommand() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "resolve ID [ID...]",
		Short: "Resolve one or more violations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			update := client.ViolationUpdate{IsResolved: true, Notes: notes}
			if len(ids) == 1 {
				err = c.SLA().UpdateViolation(cmd.Context(), ids[0], update)
			} else {
				err = c.SLA().BatchUpdateViolations(cmd.Context(), ids, update)
			}
			if err != nil {
				return err
			}
			printf(rt, "Resolved %d violation(s)\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Resolution notes")
	return cmd
}

func newViolationBatchUpdateCommand() *cobra.Command {
	var (
		resolved bool
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "batch-update ID [ID...]",
		Short: "Apply the same update to several violations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if err := c.SLA().BatchUpdateViolations(cmd.Context(), ids, client.ViolationUpdate{IsResolved: resolved, Notes: notes}); err != nil {
				return err
			}
			printf(rt, "Updated %d violation(s)\n", len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Mark the violations resolved")
	cmd.Flags().StringVar(&notes, "notes", "", "Handling notes")
	return cmd
}

func newViolationWatchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch ID",
		Short: "Poll a violation until it is resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			monitor := &slamonitor.Monitor{Source: c.SLA(), Interval: interval}
			final, err := monitor.Watch(cmd.Context(), id, func(v client.SLAViolation) {
				if rt.OutputFormat().Structured() {
					return
				}
				printf(rt, "%s violation %d ticket %d: %s, %d min late, severity %s\n",
					time.Now().UTC().Format(time.RFC3339), v.ID, v.TicketID, v.Status, v.DelayMinutes, v.Severity)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return output.WriteObject(rt.Writer(), rt.OutputFormat(), final)
			}
			printf(rt, "Violation %d resolved\n", final.ID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", slamonitor.DefaultInterval, "Polling interval")
	return cmd
}

func newSLAReportCommand() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the SLA compliance report for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			report, err := c.SLA().ComplianceReport(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return renderObject(rt, report, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Period", Value: report.ReportPeriod.StartDate + " - " + report.ReportPeriod.EndDate},
					{Key: "Tickets", Value: output.Count(report.TotalTickets)},
					{Key: "Met SLA", Value: output.Count(report.MetSLA)},
					{Key: "Violated SLA", Value: output.Count(report.ViolatedSLA)},
					{Key: "Compliance", Value: output.Percent(report.ComplianceRate)},
					{Key: "Avg response", Value: minutes(report.AvgResponseTime)},
					{Key: "Avg resolution", Value: minutes(report.AvgResolutionTime)},
				})
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func minutes(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + " min"
}

func newSLACheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check TICKET_ID",
		Short: "Ask the server to re-check SLA compliance of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if err := c.SLA().CheckCompliance(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Compliance check queued for ticket %d\n", id)
			return nil
		},
	}
}

func newSLAStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show SLA totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			stats, err := c.SLA().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return renderObject(rt, stats, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Definitions", Value: fmt.Sprintf("%s (%s active)", output.Count(stats.TotalDefinitions), output.Count(stats.ActiveDefinitions))},
					{Key: "Violations", Value: fmt.Sprintf("%s (%s open)", output.Count(stats.TotalViolations), output.Count(stats.OpenViolations))},
					{Key: "Compliance", Value: output.Percent(stats.OverallComplianceRate)},
				})
			})
		},
	}
}

func newSLAMonitoringCommand() *cobra.Command {
	var (
		start, end string
		definition int
	)
	cmd := &cobra.Command{
		Use:   "monitoring",
		Short: "Show compliance, at-risk tickets and active alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			m, err := c.SLA().Monitoring(cmd.Context(), client.MonitoringRequest{StartTime: start, EndTime: end, SLADefinitionID: definition})
			if err != nil {
				return err
			}
			return renderObject(rt, m, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Tickets", Value: output.Count(m.TotalTickets)},
					{Key: "Compliant", Value: output.Count(m.CompliantTickets)},
					{Key: "Violated", Value: output.Count(m.ViolatedTickets)},
					{Key: "At risk", Value: output.Count(m.AtRiskTickets)},
					{Key: "Compliance", Value: output.Percent(m.ComplianceRate)},
					{Key: "Violation rate", Value: output.Percent(m.ViolationRate)},
					{Key: "Response compliance", Value: output.Percent(m.ResponseTimeCompliance)},
					{Key: "Resolution compliance", Value: output.Percent(m.ResolutionTimeCompliance)},
				})
				if len(m.Alerts) > 0 {
					_, _ = fmt.Fprintln(w)
					output.WriteAlertTable(w, m.Alerts)
				}
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start of the window (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "End of the window (RFC3339)")
	cmd.Flags().IntVar(&definition, "sla-definition", 0, "Restrict to one SLA definition")
	return cmd
}

func newSLAMetricsCommand() *cobra.Command {
	var opts client.SLAMetricsOptions
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show SLA metrics and their trend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			metrics, err := c.SLA().Metrics(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return renderObject(rt, metrics, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Compliance", Value: output.Percent(metrics.ComplianceRate)},
					{Key: "Violations", Value: output.Count(metrics.ViolationCount)},
					{Key: "Avg response", Value: minutes(metrics.ResponseTimeAvg)},
					{Key: "Avg resolution", Value: minutes(metrics.ResolutionTimeAvg)},
				})
				if len(metrics.TrendData) == 0 {
					return
				}
				_, _ = fmt.Fprintln(w)
				rows := make([]output.KV, 0, len(metrics.TrendData))
				for _, p := range metrics.TrendData {
					rows = append(rows, output.KV{Key: p.Date, Value: output.Percent(p.ComplianceRate)})
				}
				output.WriteKeyValues(w, rows)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Period, "period", "", "day, week or month")
	cmd.Flags().StringVar(&opts.ServiceType, "service-type", "", "Filter by service type")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "Filter by priority")
	cmd.Flags().IntVar(&opts.SLADefinitionID, "sla-definition", 0, "Restrict to one SLA definition")
	cmd.Flags().StringVar(&opts.MetricType, "metric-type", "", "Metric type")
	return cmd
}

func newSLAAlertsCommand() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List tickets close to breaching their SLA",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			alerts, err := c.SLA().Alerts(cmd.Context())
			if err != nil {
				return err
			}
			return renderList(rt, alerts, flags, output.WriteAlertTable, nil)
		},
	}
	flags.register(cmd)
	return cmd
}

func newSLATriggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger-monitor",
		Short: "Run the server-side SLA check now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			run, err := c.SLA().TriggerMonitor(cmd.Context())
			if err != nil {
				return err
			}
			return renderObject(rt, run, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "Checked %d tickets, found %d violations, sent %d alerts\n", run.CheckedTickets, run.ViolationsFound, run.AlertsSent)
			})
		},
	}
}

func newSLAAlertRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert-rules",
		Aliases: []string{"alert-rule"},
		Short:   "Manage SLA alert rules",
	}

	var (
		listOpts   client.AlertRuleListOptions
		activeOnly bool
		flags      listFlags
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List alert rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if activeOnly {
				listOpts.IsActive = boolPtr(true)
			}
			rules, err := c.SLA().ListAlertRules(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			return renderList(rt, rules, flags, output.WriteAlertRuleTable, nil)
		},
	}
	list.Flags().IntVar(&listOpts.SLADefinitionID, "sla-definition", 0, "Filter by SLA definition")
	list.Flags().StringVar(&listOpts.AlertLevel, "level", "", "warning or critical")
	list.Flags().BoolVar(&activeOnly, "active", false, "Only active rules")
	flags.register(list)

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show an alert rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			rule, err := c.SLA().GetAlertRule(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderAlertRule(rt, rule)
		},
	}

	var createFlags alertRuleFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an alert rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule, err := createFlags.rule(cmd, client.SLAAlertRule{IsActive: true})
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			created, err := c.SLA().CreateAlertRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			return renderAlertRule(rt, created)
		},
	}
	createFlags.register(create)

	var updateFlags alertRuleFlags
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of an alert rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			current, err := c.SLA().GetAlertRule(cmd.Context(), id)
			if err != nil {
				return err
			}
			rule, err := updateFlags.rule(cmd, *current)
			if err != nil {
				return err
			}
			updated, err := c.SLA().UpdateAlertRule(cmd.Context(), id, rule)
			if err != nil {
				return err
			}
			return renderAlertRule(rt, updated)
		},
	}
	updateFlags.register(update)

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an alert rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if err := c.SLA().DeleteAlertRule(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Deleted alert rule %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func renderAlertRule(rt *runtimeState, rule *client.SLAAlertRule) error {
	return renderObject(rt, rule, func(w io.Writer) {
		output.WriteAlertRuleTable(w, []client.SLAAlertRule{*rule})
	})
}

type alertRuleFlags struct {
	file       string
	name       string
	definition int
	level      string
	threshold  int
	channels   []string
	escalation bool
	active     bool
}

func (f *alertRuleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.name, "name", "", "Rule name")
	cmd.Flags().IntVar(&f.definition, "sla-definition", 0, "SLA definition the rule watches")
	cmd.Flags().StringVar(&f.level, "level", "", "warning or critical")
	cmd.Flags().IntVar(&f.threshold, "threshold", 0, "Alert once this percentage of the SLA time is used")
	cmd.Flags().StringSliceVar(&f.channels, "channel", nil, "Notification channel (repeatable)")
	cmd.Flags().BoolVar(&f.escalation, "escalation", false, "Enable escalation levels")
	cmd.Flags().BoolVar(&f.active, "active", true, "Whether the rule is active")
}

// rule overlays the manifest and then explicit flags on base.
func (f *alertRuleFlags) rule(cmd *cobra.Command, base client.SLAAlertRule) (client.SLAAlertRule, error) {
	rule := base
	if f.file != "" {
		if err := readManifest(cmd, f.file, &rule); err != nil {
			return rule, err
		}
	}
	set := cmd.Flags().Changed
	if set("name") {
		rule.Name = f.name
	}
	if set("sla-definition") {
		rule.SLADefinitionID = f.definition
	}
	if set("level") {
		rule.AlertLevel = f.level
	}
	if set("threshold") {
		rule.ThresholdPercentage = f.threshold
	}
	if set("channel") {
		rule.NotificationChannels = f.channels
	}
	if set("escalation") {
		rule.EscalationEnabled = f.escalation
	}
	if set("active") {
		rule.IsActive = f.active
	}
	return rule, nil
}

func newSLAAlertHistoryCommand() *cobra.Command {
	var (
		opts  client.AlertHistoryOptions
		flags listFlags
	)
	cmd := &cobra.Command{
		Use:   "alert-history",
		Short: "List alerts that were sent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			items, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.SLAAlertHistory, int, error) {
				query := opts
				query.PageRequest = client.PageRequest{Page: page, PageSize: size}
				resp, err := c.SLA().AlertHistory(ctx, query)
				if err != nil {
					return nil, 0, err
				}
				return resp.Items, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, items, flags, output.WriteAlertHistoryTable, nil)
		},
	}
	cmd.Flags().IntVar(&opts.SLADefinitionID, "sla-definition", 0, "Filter by SLA definition")
	cmd.Flags().IntVar(&opts.AlertRuleID, "alert-rule", 0, "Filter by alert rule")
	cmd.Flags().IntVar(&opts.TicketID, "ticket", 0, "Filter by ticket")
	cmd.Flags().StringVar(&opts.AlertLevel, "level", "", "warning or critical")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "Start of the window (RFC3339)")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "End of the window (RFC3339)")
	flags.register(cmd)
	return cmd
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/board"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

func NewTicketCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ticket",
		Aliases: []string{"tickets", "tk"},
		Short:   "Manage tickets",
	}
	cmd.AddCommand(
		newTicketListCommand(),
		newTicketGetCommand(),
		newTicketCreateCommand(),
		newTicketUpdateCommand(),
		newTicketDeleteCommand(),
		newTicketStatusCommand(),
		newTicketAssignCommand(),
		newTicketTextActionCommand("escalate", "Escalate a ticket", "reason", true, (*client.TicketService).Escalate),
		newTicketTextActionCommand("resolve", "Resolve a ticket", "resolution", true, (*client.TicketService).Resolve),
		newTicketTextActionCommand("close", "Close a ticket", "feedback", false, (*client.TicketService).Close),
		newTicketActivityCommand(),
		newTicketStatsCommand(),
		newTicketSearchCommand(),
		newTicketOverdueCommand(),
		newTicketBoardCommand(),
	)
	return cmd
}

func newTicketListCommand() *cobra.Command {
	var (
		f       filter.TicketFilter
		opts    client.TicketListOptions
		overdue bool
		flags   listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			query := opts
			query.Status = client.TicketStatus(serverSelector(f.Status))
			query.Priority = client.Priority(serverSelector(f.Priority))
			query.Keyword = f.Keyword
			query.IsOverdue = overdue

			// Without --all a single server page is shown as is; --all walks
			// every page and applies the filter locally as well.
			if !flags.all {
				query.PageRequest = client.PageRequest{Page: flags.page, PageSize: flags.size(rt)}
				resp, err := c.Tickets().List(cmd.Context(), query)
				if err != nil {
					return err
				}
				if err := renderObjectList(rt, resp.Tickets, output.WriteTicketTable, output.WriteTicketTableWide); err != nil {
					return err
				}
				if !rt.OutputFormat().Structured() {
					printf(rt, "Showing page %d of %d (%d tickets)\n", max(resp.Page, 1), maxPage(resp.Total, max(resp.PageSize, 1)), resp.Total)
				}
				return nil
			}
			tickets, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.Ticket, int, error) {
				q := query
				q.PageRequest = client.PageRequest{Page: page, PageSize: size}
				resp, err := c.Tickets().List(ctx, q)
				if err != nil {
					return nil, 0, err
				}
				return resp.Tickets, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, f.Apply(tickets), flags, output.WriteTicketTable, output.WriteTicketTableWide)
		},
	}
	cmd.Flags().StringVar(&f.Keyword, "keyword", "", "Match title, description or ticket number")
	cmd.Flags().StringVar(&f.Status, "status", "", "Filter by status or all")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "Filter by priority or all")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Filter by category")
	cmd.Flags().IntVar(&opts.AssigneeID, "assignee", 0, "Filter by assignee id")
	cmd.Flags().IntVar(&opts.RequesterID, "requester", 0, "Filter by requester id")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "Only overdue tickets")
	cmd.Flags().StringVar(&opts.SortBy, "sort-by", "", "Sort field, e.g. created_at")
	cmd.Flags().StringVar(&opts.SortOrder, "sort-order", "", "asc or desc")
	flags.register(cmd)
	return cmd
}

// renderObjectList writes an already paginated slice.
func renderObjectList[T any](rt *runtimeState, items []T, table, wide func(io.Writer, []T)) error {
	format := rt.OutputFormat()
	switch {
	case format.Structured():
		return output.WriteObject(rt.Writer(), format, items)
	case format == output.FormatWide && wide != nil:
		wide(rt.Writer(), items)
	default:
		table(rt.Writer(), items)
	}
	return nil
}

func newTicketGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a ticket with its activity and SLA violations",
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
			detail, err := c.Tickets().Detail(cmd.Context(), id)
			if detail == nil {
				return err
			}
			if renderErr := renderTicketDetail(rt, detail); renderErr != nil {
				return renderErr
			}
			output.WriteWarnings(rt.ErrWriter(), detail.Errors)
			return nil
		},
	}
}

func renderTicketDetail(rt *runtimeState, d *client.TicketDetail) error {
	return renderObject(rt, d, func(w io.Writer) {
		writeTicketFields(w, d.Ticket)
		if len(d.Activity) > 0 {
			_, _ = fmt.Fprintln(w, "\nActivity:")
			output.WriteTicketActivityTable(w, d.Activity)
		}
		if len(d.Violations) > 0 {
			_, _ = fmt.Fprintln(w, "\nSLA violations:")
			output.WriteViolationTable(w, d.Violations)
		}
	})
}

func writeTicketFields(w io.Writer, t *client.Ticket) {
	assignee := "-"
	if t.AssigneeID > 0 {
		assignee = strconv.Itoa(t.AssigneeID)
	}
	output.WriteKeyValues(w, []output.KV{
		{Key: "Ticket", Value: fmt.Sprintf("%s (%d)", dashIfEmpty(t.TicketNumber), t.ID)},
		{Key: "Title", Value: t.Title},
		{Key: "Status", Value: string(t.Status)},
		{Key: "Priority", Value: string(t.Priority)},
		{Key: "Category", Value: dashIfEmpty(t.Category)},
		{Key: "Requester", Value: strconv.Itoa(t.RequesterID)},
		{Key: "Assignee", Value: assignee},
		{Key: "Due", Value: output.AgePtr(t.DueDate)},
		{Key: "Created", Value: output.Age(t.CreatedAt)},
		{Key: "Description", Value: t.Description},
	})
}

func renderTicket(rt *runtimeState, t *client.Ticket) error {
	return renderObject(rt, t, func(w io.Writer) { writeTicketFields(w, t) })
}

type ticketFlags struct {
	file        string
	title       string
	description string
	priority    string
	status      string
	category    string
	requester   int
	assignee    int
	tags        []string
}

func (f *ticketFlags) register(cmd *cobra.Command, withStatus bool) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.title, "title", "", "Title (2-200 characters)")
	cmd.Flags().StringVar(&f.description, "description", "", "Description (10-5000 characters)")
	cmd.Flags().StringVar(&f.priority, "priority", string(client.PriorityMedium), "low, medium, high or critical")
	cmd.Flags().StringVar(&f.category, "category", "", "Category")
	cmd.Flags().IntVar(&f.assignee, "assignee", 0, "Assignee user id")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Tag (repeatable)")
	if withStatus {
		cmd.Flags().StringVar(&f.status, "status", "", "New status")
	} else {
		cmd.Flags().IntVar(&f.requester, "requester", 0, "Requester user id")
	}
}

func (f *ticketFlags) createRequest(cmd *cobra.Command) (client.CreateTicketRequest, error) {
	req := client.CreateTicketRequest{Priority: client.Priority(f.priority)}
	if f.file != "" {
		if err := readManifest(cmd, f.file, &req); err != nil {
			return req, err
		}
	}
	set := cmd.Flags().Changed
	if set("title") {
		req.Title = f.title
	}
	if set("description") {
		req.Description = f.description
	}
	if set("priority") || req.Priority == "" {
		req.Priority = client.Priority(f.priority)
	}
	if set("category") {
		req.Category = f.category
	}
	if set("requester") {
		req.RequesterID = f.requester
	}
	if set("assignee") {
		req.AssigneeID = f.assignee
	}
	if set("tag") {
		req.Tags = f.tags
	}
	return req, nil
}

func (f *ticketFlags) updateRequest(cmd *cobra.Command) (client.UpdateTicketRequest, error) {
	var req client.UpdateTicketRequest
	if f.file != "" {
		if err := readManifest(cmd, f.file, &req); err != nil {
			return req, err
		}
	}
	set := cmd.Flags().Changed
	if set("title") {
		req.Title = f.title
	}
	if set("description") {
		req.Description = f.description
	}
	if set("priority") {
		req.Priority = client.Priority(f.priority)
	}
	if set("status") {
		req.Status = client.TicketStatus(f.status)
	}
	if set("category") {
		req.Category = f.category
	}
	if set("assignee") {
		req.AssigneeID = f.assignee
	}
	if set("tag") {
		req.Tags = f.tags
	}
	return req, nil
}

func newTicketCreateCommand() *cobra.Command {
	var flags ticketFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a ticket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.createRequest(cmd)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			t, err := c.Tickets().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderTicket(rt, t)
			}
			printf(rt, "Created ticket %s (%d)\n", dashIfEmpty(t.TicketNumber), t.ID)
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newTicketUpdateCommand() *cobra.Command {
	var flags ticketFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req, err := flags.updateRequest(cmd)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			t, err := c.Tickets().Update(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return renderTicket(rt, t)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newTicketDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a ticket",
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
			if err := c.Tickets().Delete(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Deleted ticket %d\n", id)
			return nil
		},
	}
}

func newTicketStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Move a ticket to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := client.TicketStatus(args[1])
			if !status.Valid() {
				return fmt.Errorf("invalid status %q", args[1])
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			t, err := c.Tickets().UpdateStatus(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			return ticketActionResult(rt, t)
		},
	}
}

func ticketActionResult(rt *runtimeState, t *client.Ticket) error {
	if rt.OutputFormat().Structured() {
		return renderTicket(rt, t)
	}
	printf(rt, "Ticket %d is %s\n", t.ID, t.Status)
	return nil
}

func newTicketAssignCommand() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "assign ID ASSIGNEE_ID",
		Short: "Assign a ticket to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			t, err := c.Tickets().Assign(cmd.Context(), ids[0], ids[1], comment)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderTicket(rt, t)
			}
			printf(rt, "Ticket %d assigned to %d\n", t.ID, ids[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded with the assignment")
	return cmd
}

func newTicketTextActionCommand(use, short, flagName string, required bool, apply func(*client.TicketService, context.Context, int, string) (*client.Ticket, error)) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
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
			t, err := apply(c.Tickets(), cmd.Context(), id, text)
			if err != nil {
				return err
			}
			return ticketActionResult(rt, t)
		},
	}
	cmd.Flags().StringVar(&text, flagName, "", short+": "+flagName)
	if required {
		_ = cmd.MarkFlagRequired(flagName)
	}
	return cmd
}

func newTicketActivityCommand() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "activity ID",
		Short: "Show the activity log of a ticket",
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
			activity, err := c.Tickets().Activity(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderList(rt, activity, flags, output.WriteTicketActivityTable, nil)
		},
	}
	flags.register(cmd)
	return cmd
}

func newTicketStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ticket counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			stats, err := c.Tickets().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return renderObject(rt, stats, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Total", Value: output.Count(stats.Total)},
					{Key: "Open", Value: output.Count(stats.Open)},
					{Key: "In progress", Value: output.Count(stats.InProgress)},
					{Key: "Resolved", Value: output.Count(stats.Resolved)},
					{Key: "High priority", Value: output.Count(stats.HighPriority)},
					{Key: "Overdue", Value: output.Count(stats.Overdue)},
				})
			})
		},
	}
}

func newTicketSearchCommand() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Full-text search over tickets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			tickets, err := c.Tickets().Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderList(rt, tickets, flags, output.WriteTicketTable, output.WriteTicketTableWide)
		},
	}
	flags.register(cmd)
	return cmd
}

func newTicketOverdueCommand() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List tickets past their due date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			tickets, err := c.Tickets().Overdue(cmd.Context())
			if err != nil {
				return err
			}
			return renderList(rt, tickets, flags, output.WriteTicketTable, output.WriteTicketTableWide)
		},
	}
	flags.register(cmd)
	return cmd
}

func newTicketBoardCommand() *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Interactive kanban board of tickets by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if rt.nonInteractive {
				return errors.New("the board needs an interactive terminal")
			}
			var src board.Source = board.ClientSource{Tickets: c.Tickets()}
			if readOnly {
				src = board.ReadOnly(src)
			}
			return board.Run(cmd.Context(), src, cmd.InOrStdin(), rt.Writer())
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Disable moving tickets between columns")
	return cmd
}

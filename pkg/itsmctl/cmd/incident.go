package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

func NewIncidentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "incident",
		Aliases: []string{"incidents", "inc"},
		Short:   "Manage incidents",
	}
	cmd.AddCommand(
		newIncidentListCommand(),
		newIncidentGetCommand(),
		newIncidentCreateCommand(),
		newIncidentUpdateCommand(),
		newIncidentCloseCommand(),
		newIncidentStatsCommand(),
	)
	return cmd
}

func newIncidentListCommand() *cobra.Command {
	var (
		f      filter.IncidentFilter
		opts   client.IncidentListOptions
		source string
		typ    string
		flags  listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			query := opts
			query.Status = client.IncidentStatus(serverSelector(f.Status))
			query.Priority = client.Priority(serverSelector(f.Priority))
			query.Source = client.IncidentSource(serverSelector(source))
			query.Type = client.IncidentType(serverSelector(typ))
			if f.MajorOnly {
				query.IsMajorIncident = boolPtr(true)
			}
			incidents, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.Incident, int, error) {
				q := query
				q.PageRequest = client.PageRequest{Page: page, PageSize: size}
				resp, err := c.Incidents().List(ctx, q)
				if err != nil {
					return nil, 0, err
				}
				return resp.Incidents, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, f.Apply(incidents), flags, output.WriteIncidentTable, output.WriteIncidentTableWide)
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "Match title, description or incident number")
	cmd.Flags().StringVar(&f.Status, "status", "", "Filter by status or all")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "Filter by priority or all")
	cmd.Flags().BoolVar(&f.MajorOnly, "major", false, "Only major incidents")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source")
	cmd.Flags().StringVar(&typ, "type", "", "Filter by type")
	cmd.Flags().IntVar(&opts.AssigneeID, "assignee", 0, "Filter by assignee id")
	cmd.Flags().StringVar(&opts.SortBy, "sort-by", "", "Sort field")
	cmd.Flags().StringVar(&opts.SortOrder, "sort-order", "", "asc or desc")
	flags.register(cmd)
	return cmd
}

func newIncidentGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show an incident",
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
			inc, err := c.Incidents().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderIncident(rt, inc)
		},
	}
}

func renderIncident(rt *runtimeState, inc *client.Incident) error {
	return renderObject(rt, inc, func(w io.Writer) {
		major := "no"
		if inc.IsMajorIncident {
			major = "yes"
		}
		output.WriteKeyValues(w, []output.KV{
			{Key: "Incident", Value: fmt.Sprintf("%s (%d)", dashIfEmpty(inc.IncidentNumber), inc.ID)},
			{Key: "Title", Value: inc.Title},
			{Key: "Status", Value: string(inc.Status)},
			{Key: "Priority", Value: fmt.Sprintf("%s (%s)", inc.Priority, inc.Severity())},
			{Key: "Source", Value: string(inc.Source)},
			{Key: "Type", Value: string(inc.Type)},
			{Key: "Major", Value: major},
			{Key: "Assignee", Value: dashIfEmpty(inc.AssigneeName)},
			{Key: "Created", Value: output.Age(inc.CreatedAt)},
			{Key: "Resolved", Value: output.AgePtr(inc.ResolutionTime)},
			{Key: "Resolution", Value: dashIfEmpty(inc.Resolution)},
			{Key: "Description", Value: inc.Description},
		})
	})
}

type incidentFlags struct {
	file        string
	title       string
	description string
	priority    string
	status      string
	source      string
	typ         string
	requester   int
	assignee    int
	category    int
	major       bool
	resolution  string
	tags        []string
}

func (f *incidentFlags) register(cmd *cobra.Command, update bool) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.title, "title", "", "Title")
	cmd.Flags().StringVar(&f.description, "description", "", "Description")
	cmd.Flags().StringVar(&f.priority, "priority", string(client.PriorityMedium), "low, medium, high or critical")
	cmd.Flags().IntVar(&f.assignee, "assignee", 0, "Assignee user id")
	cmd.Flags().IntVar(&f.category, "category", 0, "Category id")
	cmd.Flags().BoolVar(&f.major, "major", false, "Flag as major incident")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Tag (repeatable)")
	if update {
		cmd.Flags().StringVar(&f.status, "status", "", "new, in_progress, resolved, closed or cancelled")
		cmd.Flags().StringVar(&f.resolution, "resolution", "", "Resolution text")
		return
	}
	cmd.Flags().StringVar(&f.source, "source", string(client.IncidentSourceWeb), "email, phone, web, api, monitoring or chat")
	cmd.Flags().StringVar(&f.typ, "type", string(client.IncidentTypeOther), "hardware, software, network, security, access or other")
	cmd.Flags().IntVar(&f.requester, "requester", 0, "Requester user id")
}

func (f *incidentFlags) createRequest(cmd *cobra.Command) (client.CreateIncidentRequest, error) {
	req := client.CreateIncidentRequest{
		Priority: client.Priority(f.priority),
		Source:   client.IncidentSource(f.source),
		Type:     client.IncidentType(f.typ),
	}
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
	if set("source") || req.Source == "" {
		req.Source = client.IncidentSource(f.source)
	}
	if set("type") || req.Type == "" {
		req.Type = client.IncidentType(f.typ)
	}
	if set("requester") {
		req.RequesterID = f.requester
	}
	if set("assignee") {
		req.AssigneeID = f.assignee
	}
	if set("category") {
		req.CategoryID = f.category
	}
	if set("major") {
		req.IsMajorIncident = f.major
	}
	if set("tag") {
		req.Tags = f.tags
	}
	return req, nil
}

func (f *incidentFlags) updateRequest(cmd *cobra.Command) (client.UpdateIncidentRequest, error) {
	var req client.UpdateIncidentRequest
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
		req.Status = client.IncidentStatus(f.status)
	}
	if set("assignee") {
		req.AssigneeID = f.assignee
	}
	if set("category") {
		req.CategoryID = f.category
	}
	if set("resolution") {
		req.Resolution = f.resolution
	}
	if set("major") {
		req.IsMajorIncident = boolPtr(f.major)
	}
	if set("tag") {
		req.Tags = f.tags
	}
	return req, nil
}

func newIncidentCreateCommand() *cobra.Command {
	var flags incidentFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Report an incident",
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
			inc, err := c.Incidents().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderIncident(rt, inc)
			}
			printf(rt, "Created incident %s (%d)\n", dashIfEmpty(inc.IncidentNumber), inc.ID)
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newIncidentUpdateCommand() *cobra.Command {
	var flags incidentFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of an incident",
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
			inc, err := c.Incidents().Update(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return renderIncident(rt, inc)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newIncidentCloseCommand() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "close ID",
		Short: "Close an incident",
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
			inc, err := c.Incidents().Close(cmd.Context(), id, resolution)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderIncident(rt, inc)
			}
			printf(rt, "Incident %d is %s\n", inc.ID, inc.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "Resolution text")
	return cmd
}

func newIncidentStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show incident counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			stats, err := c.Incidents().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return renderObject(rt, stats, func(w io.Writer) {
				output.WriteKeyValues(w, []output.KV{
					{Key: "Total", Value: output.Count(stats.Total)},
					{Key: "Avg resolution", Value: minutes(stats.AvgResolutionTime)},
					{Key: "Avg first response", Value: minutes(stats.AvgFirstResponseTime)},
					{Key: "SLA compliance", Value: output.Percent(stats.SLAComplianceRate)},
				})
				for _, section := range []struct {
					title  string
					counts map[string]int
				}{
					{"By status", stats.ByStatus},
					{"By priority", stats.ByPriority},
					{"By type", stats.ByType},
					{"By source", stats.BySource},
				} {
					if len(section.counts) == 0 {
						continue
					}
					_, _ = fmt.Fprintf(w, "\n%s:\n", section.title)
					output.WriteKeyValues(w, output.CountRows(section.counts))
				}
			})
		},
	}
}

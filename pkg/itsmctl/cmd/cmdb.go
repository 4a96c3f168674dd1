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

func NewCMDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cmdb",
		Aliases: []string{"ci", "cis"},
		Short:   "Manage configuration items",
	}
	cmd.AddCommand(
		newCIListCommand(),
		newCIGetCommand(),
		newCICreateCommand(),
		newCIUpdateCommand(),
		newCIDeleteCommand(),
		newCISearchCommand(),
		newCIStatsCommand(),
	)
	return cmd
}

// listCIs pages through the CMDB with server-side narrowing by type id and status.
func listCIs(ctx context.Context, c *client.Client, typeID int, status string) ([]client.ConfigurationItem, error) {
	return fetchAll(ctx, func(ctx context.Context, page, size int) ([]client.ConfigurationItem, int, error) {
		resp, err := c.CMDB().List(ctx, client.CIListOptions{
			PageRequest: client.PageRequest{Page: page, PageSize: size},
			CITypeID:    typeID,
			Status:      client.CIStatus(serverSelector(status)),
		})
		if err != nil {
			return nil, 0, err
		}
		return resp.Items, resp.Total, nil
	})
}

func newCIListCommand() *cobra.Command {
	var (
		f      filter.CIFilter
		typeID int
		flags  listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configuration items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			items, err := listCIs(cmd.Context(), c, typeID, f.Status)
			if err != nil {
				return err
			}
			return renderList(rt, f.Apply(items), flags, output.WriteCITable, output.WriteCITableWide)
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "Match name, description, hostname, IP or serial number")
	cmd.Flags().StringVar(&f.Type, "type", "", "Filter by CI type name")
	cmd.Flags().IntVar(&typeID, "ci-type", 0, "Filter by CI type id")
	cmd.Flags().StringVar(&f.Status, "status", "", "active, inactive, maintenance, retired or all")
	flags.register(cmd)
	return cmd
}

func newCIGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a configuration item",
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
			ci, err := c.CMDB().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderCI(rt, ci)
		},
	}
}

func renderCI(rt *runtimeState, ci *client.ConfigurationItem) error {
	return renderObject(rt, ci, func(w io.Writer) {
		output.WriteKeyValues(w, []output.KV{
			{Key: "ID", Value: fmt.Sprint(ci.ID)},
			{Key: "Name", Value: ci.Name},
			{Key: "Type", Value: dashIfEmpty(ci.Type)},
			{Key: "Status", Value: string(ci.Status)},
			{Key: "Environment", Value: dashIfEmpty(ci.Environment)},
			{Key: "Hostname", Value: dashIfEmpty(ci.Hostname)},
			{Key: "IP", Value: dashIfEmpty(ci.IPAddress)},
			{Key: "Serial", Value: dashIfEmpty(ci.SerialNumber)},
			{Key: "Owner", Value: dashIfEmpty(ci.Owner)},
			{Key: "Location", Value: dashIfEmpty(ci.Location)},
			{Key: "Description", Value: dashIfEmpty(ci.Description)},
			{Key: "Updated", Value: output.Age(ci.UpdatedAt)},
		})
	})
}

type ciFlags struct {
	file        string
	name        string
	ciType      string
	typeID      int
	status      string
	description string
	environment string
	hostname    string
	ip          string
	serial      string
	owner       string
	location    string
}

func (f *ciFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.name, "name", "", "Name")
	cmd.Flags().StringVar(&f.ciType, "type", "", "CI type name")
	cmd.Flags().IntVar(&f.typeID, "ci-type", 0, "CI type id")
	cmd.Flags().StringVar(&f.status, "status", "", "active, inactive, maintenance or retired")
	cmd.Flags().StringVar(&f.description, "description", "", "Description")
	cmd.Flags().StringVar(&f.environment, "environment", "", "Environment, e.g. production")
	cmd.Flags().StringVar(&f.hostname, "hostname", "", "Hostname")
	cmd.Flags().StringVar(&f.ip, "ip", "", "IP address")
	cmd.Flags().StringVar(&f.serial, "serial", "", "Serial number")
	cmd.Flags().StringVar(&f.owner, "owner", "", "Owner")
	cmd.Flags().StringVar(&f.location, "location", "", "Location")
}

func (f *ciFlags) item(cmd *cobra.Command, base client.ConfigurationItem) (client.ConfigurationItem, error) {
	ci := base
	if f.file != "" {
		if err := readManifest(cmd, f.file, &ci); err != nil {
			return ci, err
		}
	}
	overlay := map[string]*string{
		"name":        &ci.Name,
		"type":        &ci.Type,
		"description": &ci.Description,
		"environment": &ci.Environment,
		"hostname":    &ci.Hostname,
		"ip":          &ci.IPAddress,
		"serial":      &ci.SerialNumber,
		"owner":       &ci.Owner,
		"location":    &ci.Location,
	}
	for name, dst := range overlay {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	if cmd.Flags().Changed("ci-type") {
		ci.CITypeID = f.typeID
	}
	if cmd.Flags().Changed("status") {
		ci.Status = client.CIStatus(f.status)
	}
	return ci, nil
}

func newCICreateCommand() *cobra.Command {
	var flags ciFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a configuration item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ci, err := flags.item(cmd, client.ConfigurationItem{Status: client.CIStatusActive})
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			created, err := c.CMDB().Create(cmd.Context(), ci)
			if err != nil {
				return err
			}
			return renderCI(rt, created)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCIUpdateCommand() *cobra.Command {
	var flags ciFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of a configuration item",
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
			current, err := c.CMDB().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			ci, err := flags.item(cmd, *current)
			if err != nil {
				return err
			}
			updated, err := c.CMDB().Update(cmd.Context(), id, ci)
			if err != nil {
				return err
			}
			return renderCI(rt, updated)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCIDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a configuration item",
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
			if err := c.CMDB().Delete(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Deleted configuration item %d\n", id)
			return nil
		},
	}
}

func newCISearchCommand() *cobra.Command {
	var (
		typeID int
		attrs  map[string]string
		flags  listFlags
	)
	cmd := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search configuration items by keyword and attributes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.CISearchRequest{CITypeID: typeID}
			if len(args) == 1 {
				req.Keyword = args[0]
			}
			if len(attrs) > 0 {
				req.Attributes = make(map[string]any, len(attrs))
				for k, v := range attrs {
					req.Attributes[k] = v
				}
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			items, err := c.CMDB().Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderList(rt, items, flags, output.WriteCITable, output.WriteCITableWide)
		},
	}
	cmd.Flags().IntVar(&typeID, "ci-type", 0, "Restrict to a CI type id")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "Attribute match, key=value (repeatable)")
	flags.register(cmd)
	return cmd
}

func newCIStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count configuration items per status and type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			items, err := listCIs(cmd.Context(), c, 0, "")
			if err != nil {
				return err
			}
			stats := filter.CountCIs(items)
			return renderObject(rt, stats, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "Total: %s\n\nBy status:\n", output.Count(stats.Total))
				output.WriteKeyValues(w, output.CountRows(stats.ByStatus))
				_, _ = fmt.Fprintln(w, "\nBy type:")
				output.WriteKeyValues(w, output.CountRows(stats.ByType))
			})
		},
	}
}

package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

// clientFor resolves the runtime and builds an API client for cmd.
func clientFor(cmd *cobra.Command) (*runtimeState, *client.Client, error) {
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := buildClient(cmd.Context(), rt)
	if err != nil {
		return nil, nil, err
	}
	return rt, c, nil
}

// serverSelector drops the "all" selector before it reaches a query string.
func serverSelector(sel string) string {
	if sel == filter.Any {
		return ""
	}
	return sel
}

func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"catalogs", "svc"},
		Short:   "Manage the service catalog",
	}
	cmd.AddCommand(
		newCatalogListCommand(),
		newCatalogGetCommand(),
		newCatalogCreateCommand(),
		newCatalogUpdateCommand(),
		newCatalogDeleteCommand(),
		newCatalogStatusCommand("publish", "Enable a catalog item", (*client.ServiceCatalogService).Publish),
		newCatalogStatusCommand("retire", "Disable a catalog item", (*client.ServiceCatalogService).Retire),
		newCatalogCloneCommand(),
	)
	return cmd
}

func newCatalogListCommand() *cobra.Command {
	var (
		f     filter.CatalogFilter
		flags listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			items, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.ServiceItem, int, error) {
				resp, err := c.ServiceCatalogs().List(ctx, client.CatalogListOptions{
					Page:     page,
					Size:     size,
					Category: serverSelector(f.Category),
					Status:   client.CatalogStatus(serverSelector(f.Status)),
				})
				if err != nil {
					return nil, 0, err
				}
				return resp.Catalogs, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, f.Apply(items), flags, output.WriteCatalogTable, output.WriteCatalogTableWide)
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "Case-insensitive match on name, description and category")
	cmd.Flags().StringVar(&f.Category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&f.Status, "status", "", "Filter by status: enabled, disabled or all")
	flags.register(cmd)
	return cmd
}

func newCatalogGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a catalog item",
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
			item, err := c.ServiceCatalogs().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderCatalogItem(rt, item)
		},
	}
}

func renderCatalogItem(rt *runtimeState, item *client.ServiceItem) error {
	return renderObject(rt, item, func(w io.Writer) {
		output.WriteCatalogTableWide(w, []client.ServiceItem{*item})
	})
}

type catalogFlags struct {
	file         string
	name         string
	category     string
	description  string
	deliveryTime string
	status       string
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().StringVar(&f.name, "name", "", "Item name")
	cmd.Flags().StringVar(&f.category, "category", "", "Category")
	cmd.Flags().StringVar(&f.description, "description", "", "Description")
	cmd.Flags().StringVar(&f.deliveryTime, "delivery-time", "", "Promised delivery time, e.g. 2d")
	cmd.Flags().StringVar(&f.status, "status", "", "enabled or disabled")
}

// request builds the payload from the manifest, then overlays explicit flags.
func (f *catalogFlags) request(cmd *cobra.Command) (client.ServiceItemRequest, error) {
	var req client.ServiceItemRequest
	if f.file != "" {
		if err := readManifest(cmd, f.file, &req); err != nil {
			return req, err
		}
	}
	set := cmd.Flags().Changed
	if set("name") {
		req.Name = f.name
	}
	if set("category") {
		req.Category = f.category
	}
	if set("description") {
		req.Description = f.description
	}
	if set("delivery-time") {
		req.DeliveryTime = f.deliveryTime
	}
	if set("status") {
		req.Status = client.CatalogStatus(f.status)
	}
	return req, nil
}

func newCatalogCreateCommand() *cobra.Command {
	var flags catalogFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a catalog item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			item, err := c.ServiceCatalogs().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderCatalogItem(rt, item)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCatalogUpdateCommand() *cobra.Command {
	var flags catalogFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update the given fields of a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			item, err := c.ServiceCatalogs().Update(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return renderCatalogItem(rt, item)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCatalogDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a catalog item",
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
			if err := c.ServiceCatalogs().Delete(cmd.Context(), id); err != nil {
				return err
			}
			printf(rt, "Deleted catalog item %d\n", id)
			return nil
		},
	}
}

func newCatalogStatusCommand(use, short string, apply func(*client.ServiceCatalogService, context.Context, int) (*client.ServiceItem, error)) *cobra.Command {
	return &cobra.Command{
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
			item, err := apply(c.ServiceCatalogs(), cmd.Context(), id)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderCatalogItem(rt, item)
			}
			printf(rt, "Catalog item %d is now %s\n", item.ID, item.Status)
			return nil
		},
	}
}

func newCatalogCloneCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "clone ID",
		Short: "Copy a catalog item under a new name",
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
			item, err := c.ServiceCatalogs().Clone(cmd.Context(), id, name)
			if err != nil {
				return err
			}
			return renderCatalogItem(rt, item)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the copy")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

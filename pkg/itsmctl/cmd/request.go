package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

func NewRequestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"requests", "sr"},
		Short:   "Raise and approve service requests",
	}
	cmd.AddCommand(
		newRequestListCommand(),
		newRequestGetCommand(),
		newRequestCreateCommand(),
		newRequestDecisionCommand("approve", "Approve the current approval level of a request", "comment", false,
			(*client.ServiceRequestService).Approve, "Approved request %d\n"),
		newRequestDecisionCommand("reject", "Reject a request", "reason", true,
			(*client.ServiceRequestService).Reject, "Rejected request %d\n"),
		newRequestDecisionCommand("complete", "Mark a fully approved request as delivered", "notes", false,
			(*client.ServiceRequestService).Complete, "Completed request %d\n"),
	)
	return cmd
}

func newRequestListCommand() *cobra.Command {
	var (
		status string
		flags  listFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my service requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			requests, err := fetchAll(cmd.Context(), func(ctx context.Context, page, size int) ([]client.ServiceRequest, int, error) {
				resp, err := c.ServiceRequests().Mine(ctx, client.ServiceRequestListOptions{
					Page:   page,
					Size:   size,
					Status: serverSelector(status),
				})
				if err != nil {
					return nil, 0, err
				}
				return resp.Requests, resp.Total, nil
			})
			if err != nil {
				return err
			}
			return renderList(rt, requests, flags, output.WriteServiceRequestTable, nil)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "submitted, manager_approved, it_approved, security_approved, rejected, completed or all")
	flags.register(cmd)
	return cmd
}

func newRequestGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a service request",
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
			req, err := c.ServiceRequests().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderServiceRequest(rt, req)
		},
	}
}

func renderServiceRequest(rt *runtimeState, r *client.ServiceRequest) error {
	return renderObject(rt, r, func(w io.Writer) {
		level := "-"
		if r.TotalLevels > 0 {
			level = fmt.Sprintf("%d/%d", r.CurrentLevel, r.TotalLevels)
		}
		output.WriteKeyValues(w, []output.KV{
			{Key: "ID", Value: fmt.Sprint(r.ID)},
			{Key: "Title", Value: r.Title},
			{Key: "Catalog", Value: fmt.Sprint(r.CatalogID)},
			{Key: "Status", Value: r.Status},
			{Key: "Approval level", Value: level},
			{Key: "Classification", Value: dashIfEmpty(r.DataClassification)},
			{Key: "Public IP", Value: fmt.Sprint(r.NeedsPublicIP)},
			{Key: "Cost center", Value: dashIfEmpty(r.CostCenter)},
			{Key: "Expires", Value: output.AgePtr(r.ExpireAt)},
			{Key: "Created", Value: output.Age(r.CreatedAt)},
			{Key: "Reason", Value: dashIfEmpty(r.Reason)},
		})
	})
}

func newRequestCreateCommand() *cobra.Command {
	var (
		file           string
		catalogID      int
		title          string
		reason         string
		ack            bool
		classification string
		publicIP       bool
		whitelist      []string
		costCenter     string
		expires        string
		expiresIn      time.Duration
		form           map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a service request for a catalog item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req client.CreateServiceRequest
			if file != "" {
				if err := readManifest(cmd, file, &req); err != nil {
					return err
				}
			}
			set := cmd.Flags().Changed
			if set("catalog") {
				req.CatalogID = catalogID
			}
			if set("title") {
				req.Title = title
			}
			if set("reason") {
				req.Reason = reason
			}
			if set("compliance-ack") {
				req.ComplianceAck = ack
			}
			if set("classification") {
				req.DataClassification = classification
			}
			if set("public-ip") {
				req.NeedsPublicIP = publicIP
			}
			if set("whitelist") {
				req.SourceIPWhitelist = whitelist
			}
			if set("cost-center") {
				req.CostCenter = costCenter
			}
			switch {
			case set("expires"):
				at, err := parseTime(expires)
				if err != nil {
					return err
				}
				req.ExpireAt = &at
			case set("expires-in"):
				at := time.Now().Add(expiresIn).UTC()
				req.ExpireAt = &at
			}
			if len(form) > 0 && req.FormData == nil {
				req.FormData = map[string]any{}
			}
			for k, v := range form {
				req.FormData[k] = v
			}

			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			created, err := c.ServiceRequests().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			if rt.OutputFormat().Structured() {
				return renderServiceRequest(rt, created)
			}
			printf(rt, "Created service request %d (%s)\n", created.ID, created.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON manifest, - for stdin")
	cmd.Flags().IntVar(&catalogID, "catalog", 0, "Catalog item id")
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&reason, "reason", "", "Business justification")
	cmd.Flags().BoolVar(&ack, "compliance-ack", false, "Acknowledge the compliance terms")
	cmd.Flags().StringVar(&classification, "classification", "", "public, internal or confidential (default internal)")
	cmd.Flags().BoolVar(&publicIP, "public-ip", false, "Request a public IP")
	cmd.Flags().StringSliceVar(&whitelist, "whitelist", nil, "Source IP or CIDR allowed to reach the public IP (repeatable)")
	cmd.Flags().StringVar(&costCenter, "cost-center", "", "Cost center")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiry (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expiry relative to now, e.g. 720h")
	cmd.Flags().StringToStringVar(&form, "form", nil, "Form field, key=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("expires", "expires-in")
	return cmd
}

func newRequestDecisionCommand(use, short, flagName string, required bool, apply func(*client.ServiceRequestService, context.Context, int, string) error, done string) *cobra.Command {
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
			if err := apply(c.ServiceRequests(), cmd.Context(), id, text); err != nil {
				return err
			}
			printf(rt, done, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, flagName, "", "Decision "+flagName)
	if required {
		_ = cmd.MarkFlagRequired(flagName)
	}
	return cmd
}

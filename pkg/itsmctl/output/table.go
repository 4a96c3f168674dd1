package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
}

func WriteCatalogTable(w io.Writer, items []client.ServiceItem) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSTATUS\tDELIVERY\tAGE")
	for _, it := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.Name, dash(it.Category), it.Status, dash(it.DeliveryTime), Age(it.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteCatalogTableWide(w io.Writer, items []client.ServiceItem) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSTATUS\tDELIVERY\tDESCRIPTION\tCREATED\tUPDATED")
	for _, it := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.Name, dash(it.Category), it.Status,
			dash(it.DeliveryTime), truncate(dash(it.Description), 48), formatTime(it.CreatedAt), Age(it.UpdatedAt))
	}
	_ = tw.Flush()
}

func WriteSLADefinitionTable(w io.Writer, defs []client.SLADefinition) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSERVICE_TYPE\tPRIORITY\tRESPONSE\tRESOLUTION\tAVAILABILITY\tACTIVE")
	for _, d := range defs {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dm\t%dm\t%s\t%v\n", d.ID, d.Name, dash(d.ServiceType), d.Priority,
			d.ResponseTimeMinutes, d.ResolutionTimeMinutes, percent(d.AvailabilityTarget), d.IsActive)
	}
	_ = tw.Flush()
}

func WriteViolationTable(w io.Writer, items []client.SLAViolation) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tTICKET\tTYPE\tSEVERITY\tSTATUS\tDELAY\tAGE")
	for _, v := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%dm\t%s\n", v.ID, v.TicketID, v.ViolationType, v.Severity, v.Status, v.DelayMinutes, Age(v.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteViolationTableWide(w io.Writer, items []client.SLAViolation) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tTICKET\tSLA\tTYPE\tSEVERITY\tSTATUS\tDELAY\tEXPECTED\tACTUAL\tDESCRIPTION\tNOTES")
	for _, v := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%dm\t%s\t%s\t%s\t%s\n", v.ID, v.TicketID, v.SLADefID, v.ViolationType,
			v.Severity, v.Status, v.DelayMinutes, formatTime(v.ExpectedTime), formatTime(v.ActualTime),
			truncate(dash(v.Description), 40), truncate(dash(v.Notes), 30))
	}
	_ = tw.Flush()
}

func WriteAlertTable(w io.Writer, alerts []client.SLAAlert) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "TICKET\tTITLE\tPRIORITY\tLEVEL\tREMAINING\tSLA")
	for _, a := range alerts {
		ticket := a.TicketNumber
		if ticket == "" {
			ticket = strconv.Itoa(a.TicketID)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dm\t%s\n", ticket, truncate(a.TicketTitle, 40), a.Priority, a.AlertLevel, a.TimeRemaining, dash(a.SLADefinition))
	}
	_ = tw.Flush()
}

func WriteAlertRuleTable(w io.Writer, rules []client.SLAAlertRule) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSLA\tLEVEL\tTHRESHOLD\tCHANNELS\tESCALATION\tACTIVE")
	for _, r := range rules {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d%%\t%s\t%v\t%v\n", r.ID, r.Name, r.SLADefinitionID, r.AlertLevel,
			r.ThresholdPercentage, dash(strings.Join(r.NotificationChannels, ",")), r.EscalationEnabled, r.IsActive)
	}
	_ = tw.Flush()
}

func WriteAlertHistoryTable(w io.Writer, items []client.SLAAlertHistory) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tRULE\tTICKET\tLEVEL\tSENT\tMESSAGE")
	for _, h := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n", h.ID, h.AlertRuleID, h.TicketID, h.AlertLevel, Age(h.SentAt), truncate(h.Message, 60))
	}
	_ = tw.Flush()
}

func WriteCITable(w io.Writer, items []client.ConfigurationItem) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tENVIRONMENT\tIP\tAGE")
	for _, ci := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", ci.ID, ci.Name, dash(ci.Type), ci.Status, dash(ci.Environment), dash(ci.IPAddress), Age(ci.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteCITableWide(w io.Writer, items []client.ConfigurationItem) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNUMBER\tNAME\tTYPE\tSTATUS\tENVIRONMENT\tCRITICALITY\tHOSTNAME\tIP\tOWNER\tLOCATION\tSERIAL\tWARRANTY")
	for _, ci := range items {
		warranty := "-"
		if ci.WarrantyExpiry != nil {
			warranty = ci.WarrantyExpiry.UTC().Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", ci.ID, dash(ci.CINumber), ci.Name, dash(ci.Type),
			ci.Status, dash(ci.Environment), dash(ci.Criticality), dash(ci.Hostname), dash(ci.IPAddress), dash(ci.Owner),
			dash(ci.Location), dash(ci.SerialNumber), warranty)
	}
	_ = tw.Flush()
}

func WriteTicketTable(w io.Writer, tickets []client.Ticket) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNUMBER\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tAGE")
	for _, t := range tickets {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.TicketNumber, truncate(t.Title, 48), t.Status, t.Priority, userRef(t.AssigneeID), Age(t.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteTicketTableWide(w io.Writer, tickets []client.Ticket) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNUMBER\tTITLE\tSTATUS\tPRIORITY\tCATEGORY\tREQUESTER\tASSIGNEE\tTAGS\tDUE\tCREATED\tUPDATED")
	for _, t := range tickets {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.TicketNumber, truncate(t.Title, 48), t.Status,
			t.Priority, dash(t.Category), userRef(t.RequesterID), userRef(t.AssigneeID), dash(strings.Join(t.Tags, ",")),
			AgePtr(t.DueDate), formatTime(t.CreatedAt), Age(t.UpdatedAt))
	}
	_ = tw.Flush()
}

func WriteTicketActivityTable(w io.Writer, activity []client.TicketActivity) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "WHEN\tUSER\tACTION\tDETAILS")
	for _, a := range activity {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", Age(a.Timestamp), userRef(a.UserID), a.Action, truncate(dash(a.Details), 60))
	}
	_ = tw.Flush()
}

func WriteIncidentTable(w io.Writer, incidents []client.Incident) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNUMBER\tTITLE\tSTATUS\tPRIORITY\tSEVERITY\tMAJOR\tAGE")
	for _, i := range incidents {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%v\t%s\n", i.ID, i.IncidentNumber, truncate(i.Title, 48), i.Status, i.Priority, i.Severity(), i.IsMajorIncident, Age(i.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteIncidentTableWide(w io.Writer, incidents []client.Incident) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNUMBER\tTITLE\tSTATUS\tPRIORITY\tSOURCE\tTYPE\tMAJOR\tREQUESTER\tASSIGNEE\tRESOLVED\tCREATED")
	for _, i := range incidents {
		requester := i.RequesterName
		if requester == "" {
			requester = userRef(i.RequesterID)
		}
		assignee := i.AssigneeName
		if assignee == "" {
			assignee = userRef(i.AssigneeID)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%v\t%s\t%s\t%s\t%s\n", i.ID, i.IncidentNumber, truncate(i.Title, 48), i.Status,
			i.Priority, i.Source, i.Type, i.IsMajorIncident, requester, assignee, AgePtr(i.ResolutionTime), formatTime(i.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteServiceRequestTable(w io.Writer, requests []client.ServiceRequest) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tCATALOG\tTITLE\tSTATUS\tAPPROVAL\tCLASSIFICATION\tEXPIRES\tAGE")
	for _, r := range requests {
		approval := "-"
		if r.TotalLevels > 0 {
			approval = fmt.Sprintf("%d/%d", r.CurrentLevel, r.TotalLevels)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.CatalogID, truncate(r.Title, 40), r.Status, approval,
			dash(r.DataClassification), AgePtr(r.ExpireAt), Age(r.CreatedAt))
	}
	_ = tw.Flush()
}

func WriteEscalationRuleTable(w io.Writer, rules []escalation.Rule) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tPRIORITY\tSERVICE_TYPE\tLEVELS\tSTATUS\tUPDATED")
	for _, r := range rules {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Name, dash(string(r.Priority)), dash(r.ServiceType), len(r.Levels), r.Status, Age(r.UpdatedAt))
	}
	_ = tw.Flush()
}

func WriteEscalationLevelTable(w io.Writer, levels []escalation.Level) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "LEVEL\tAFTER\tESCALATE_TO\tNOTIFY\tACTION")
	for _, l := range levels {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.Level, l.TimeThreshold, l.EscalateTo, strings.Join(l.NotificationMethod, ","), dash(l.Action))
	}
	_ = tw.Flush()
}

// KV is one row of a two column summary.
type KV struct {
	Key   string
	Value string
}

func WriteKeyValues(w io.Writer, rows []KV) {
	tw := newTabWriter(w)
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", r.Key, r.Value)
	}
	_ = tw.Flush()
}

// CountRows turns a count map into rows sorted by descending count, then key.
func CountRows(counts map[string]int) []KV {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	rows := make([]KV, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, KV{Key: k, Value: humanize.Comma(int64(counts[k]))})
	}
	return rows
}

func Count(n int) string {
	return humanize.Comma(int64(n))
}

func Percent(v float64) string {
	return percent(v)
}

func userRef(id int) string {
	if id <= 0 {
		return "-"
	}
	return "#" + strconv.Itoa(id)
}

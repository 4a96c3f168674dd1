package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

// WriteDashboard prints every loaded section. Sections that failed are listed
// as warnings at the end instead of aborting the output.
func WriteDashboard(w io.Writer, d *client.Dashboard) {
	if len(d.KPIMetrics) > 0 {
		section(w, "KPIs")
		tw := newTabWriter(w)
		_, _ = fmt.Fprintln(tw, "METRIC\tVALUE\tTREND\tCHANGE\tTARGET")
		for _, m := range d.KPIMetrics {
			target := "-"
			if m.Target != 0 {
				target = fmt.Sprintf("%g%s", m.Target, m.Unit)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%g%s\t%s\t%+.1f\t%s\n", m.Title, m.Value, m.Unit, dash(m.Trend), m.Change, target)
		}
		_ = tw.Flush()
	}
	if d.TicketStats != nil {
		section(w, "Tickets")
		s := d.TicketStats
		WriteKeyValues(w, []KV{
			{"Total", Count(s.Total)},
			{"Open", Count(s.Open)},
			{"In progress", Count(s.InProgress)},
			{"Resolved", Count(s.Resolved)},
			{"High priority", Count(s.HighPriority)},
			{"Overdue", Count(s.Overdue)},
		})
	}
	if len(d.TicketTrend) > 0 {
		section(w, "Ticket trend")
		tw := newTabWriter(w)
		_, _ = fmt.Fprintln(tw, "DATE\tNEW\tOPEN\tIN_PROGRESS\tRESOLVED\tCLOSED")
		for _, p := range d.TicketTrend {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", p.Date, p.NewTickets, p.Open, p.InProgress, p.Resolved, p.Closed)
		}
		_ = tw.Flush()
	}
	if len(d.IncidentDistribution) > 0 {
		section(w, "Incidents by category")
		counts := map[string]int{}
		for _, item := range d.IncidentDistribution {
			counts[item.Category] += item.Count
		}
		WriteKeyValues(w, CountRows(counts))
	}
	if len(d.SLAData) > 0 {
		section(w, "SLA by service")
		tw := newTabWriter(w)
		_, _ = fmt.Fprintln(tw, "SERVICE\tTARGET\tACTUAL\tMET")
		for _, s := range d.SLAData {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", s.Service, percent(s.Target), percent(s.Actual), s.Met())
		}
		_ = tw.Flush()
	}
	if len(d.SatisfactionData) > 0 {
		section(w, "Satisfaction")
		tw := newTabWriter(w)
		_, _ = fmt.Fprintln(tw, "MONTH\tRATING\tRESPONSES")
		for _, p := range d.SatisfactionData {
			_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s\n", p.Month, p.Rating, Count(p.Responses))
		}
		_ = tw.Flush()
	}
	if len(d.RecentActivities) > 0 {
		section(w, "Recent activity")
		tw := newTabWriter(w)
		_, _ = fmt.Fprintln(tw, "WHEN\tTYPE\tTITLE\tUSER\tSTATUS")
		for _, a := range d.RecentActivities {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Timestamp, a.Type, truncate(a.Title, 48), dash(a.User), dash(a.Status))
		}
		_ = tw.Flush()
	}
	WriteWarnings(w, d.Errors)
}

// WriteWarnings prints one line per failed section, sorted by section name.
func WriteWarnings(w io.Writer, errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	_, _ = fmt.Fprintln(w)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "Warning: %s unavailable: %s\n", k, errs[k])
	}
}

func section(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "\n== %s ==\n", title)
}

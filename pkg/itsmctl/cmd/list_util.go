package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

// maxFetchPages bounds fetchAll when the server keeps reporting more items.
const maxFetchPages = 50

func paginate[T any](items []T, page, pageSize int, all bool) ([]T, string) {
	if all || pageSize <= 0 {
		return items, ""
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, fmt.Sprintf("Showing page %d of %d (%d total items)", page, maxPage(len(items), pageSize), len(items))
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], fmt.Sprintf("Showing page %d of %d (%d total items)", page, maxPage(len(items), pageSize), len(items))
}

func maxPage(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	if pages == 0 {
		return 1
	}
	return pages
}

// fetchAll walks the server pages at the maximum page size until total items
// were seen or a page comes back empty.
func fetchAll[T any](ctx context.Context, fetch func(ctx context.Context, page, size int) ([]T, int, error)) ([]T, error) {
	var all []T
	for page := 1; page <= maxFetchPages; page++ {
		items, total, err := fetch(ctx, page, client.MaxPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			break
		}
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}

type listFlags struct {
	page     int
	pageSize int
	all      bool
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Items per page (defaults to the page-size setting)")
	cmd.Flags().BoolVar(&f.all, "all", false, "Show all items without paging")
}

func (f listFlags) size(rt *runtimeState) int {
	if f.pageSize > 0 {
		return f.pageSize
	}
	return rt.PageSize()
}

// renderList pages items and writes them in the selected format. wide may be
// nil when the resource has no wide table.
func renderList[T any](rt *runtimeState, items []T, flags listFlags, table, wide func(io.Writer, []T)) error {
	pageItems, info := paginate(items, flags.page, flags.size(rt), flags.all)
	w := rt.Writer()
	format := rt.OutputFormat()
	switch {
	case format.Structured():
		return output.WriteObject(w, format, pageItems)
	case format == output.FormatWide && wide != nil:
		wide(w, pageItems)
	default:
		table(w, pageItems)
	}
	if info != "" {
		_, _ = fmt.Fprintln(w, info)
	}
	return nil
}

// renderObject writes a single object; table renders it for table and wide output.
func renderObject(rt *runtimeState, obj any, table func(io.Writer)) error {
	format := rt.OutputFormat()
	if format.Structured() {
		return output.WriteObject(rt.Writer(), format, obj)
	}
	table(rt.Writer())
	return nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: expected a positive number", arg)
	}
	return id, nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseTime accepts RFC3339 or a plain date; the empty string is the zero time.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

func boolPtr(b bool) *bool {
	return &b
}

func printf(rt *runtimeState, format string, args ...any) {
	_, _ = fmt.Fprintf(rt.Writer(), format, args...)
}

package board

import (
	"context"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

// Source supplies the tickets shown on the board.
type Source interface {
	ListTickets(ctx context.Context) ([]client.Ticket, error)
}

// Mover is implemented by sources that can change a ticket's status. A
// board whose source is not a Mover is read-only.
type Mover interface {
	MoveTicket(ctx context.Context, id int, status client.TicketStatus) error
}

const maxListPages = 20

// ClientSource reads and moves tickets through the ticket API.
type ClientSource struct {
	Tickets *client.TicketService
}

func (s ClientSource) ListTickets(ctx context.Context) ([]client.Ticket, error) {
	var out []client.Ticket
	for page := 1; page <= maxListPages; page++ {
		resp, err := s.Tickets.List(ctx, client.TicketListOptions{
			PageRequest: client.PageRequest{Page: page, PageSize: client.MaxPageSize},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Tickets...)
		if len(resp.Tickets) == 0 || len(out) >= resp.Total {
			break
		}
	}
	return out, nil
}

func (s ClientSource) MoveTicket(ctx context.Context, id int, status client.TicketStatus) error {
	_, err := s.Tickets.UpdateStatus(ctx, id, status)
	return err
}

type readOnly struct {
	Source
}

// ReadOnly hides the Mover side of src.
func ReadOnly(src Source) Source {
	return readOnly{Source: src}
}

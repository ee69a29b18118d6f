package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/customers"
	"github.com/invoicething/invoicething/internal/db"
	"github.com/invoicething/invoicething/internal/mailer"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Renderer produces the PDF document of an invoice.
type Renderer interface {
	Render(ctx context.Context, invoiceID uuid.UUID) ([]byte, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const headerColumns = `id, org_id, due_date, total, status, created_at, updated_at`

// Service is the invoice ledger. Every mutation is scoped to the acting
// organization; Get is the only unscoped read.
type Service struct {
	pool     *pgxpool.Pool
	renderer Renderer
	sender   mailer.Sender
	baseURL  string
}

// NewService creates the ledger. renderer and sender are only used by Send.
func NewService(pool *pgxpool.Pool, renderer Renderer, sender mailer.Sender, baseURL string) *Service {
	return &Service{
		pool:     pool,
		renderer: renderer,
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// PayLink is the customer-facing URL of an invoice.
func (s *Service) PayLink(invoiceID uuid.UUID) string {
	return s.baseURL + "/invoice/" + invoiceID.String()
}

// Create persists a draft invoice whose total is the sum of the org's
// services among params.ServiceIDs. Ids of unknown or foreign services are
// ignored; if none remain the invoice is rejected with ErrNoServices.
// Every customer must belong to the org.
func (s *Service) Create(ctx context.Context, orgID, userID uuid.UUID, params CreateParams) (*Detail, error) {
	dueDate, err := validation.Date("due_date", params.DueDate)
	if err != nil {
		return nil, err
	}
	serviceIDs := uniqueIDs(params.ServiceIDs)
	customerIDs := uniqueIDs(params.CustomerIDs)
	if len(serviceIDs) == 0 {
		return nil, ErrNoServices
	}

	var invoiceID uuid.UUID
	err = db.InTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var total decimal.Decimal
		var found []uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(price), 0), COALESCE(array_agg(id), '{}')
			FROM services
			WHERE org_id = $1 AND id = ANY($2)
		`, orgID, serviceIDs).Scan(&total, &found)
		if err != nil {
			return fmt.Errorf("failed to resolve services: %w", err)
		}
		if len(found) == 0 || !total.IsPositive() {
			return ErrNoServices
		}

		if len(customerIDs) > 0 {
			var count int
			if err := tx.QueryRow(ctx, `
				SELECT COUNT(*) FROM customers WHERE org_id = $1 AND id = ANY($2)
			`, orgID, customerIDs).Scan(&count); err != nil {
				return fmt.Errorf("failed to resolve customers: %w", err)
			}
			if count != len(customerIDs) {
				return ErrCustomerNotFound
			}
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO invoices (org_id, due_date, total, status, created_by_user_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, orgID, dueDate, total, StatusDraft, userID).Scan(&invoiceID); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (org_id, invoice_id, service_id)
			SELECT $1, $2, unnest($3::uuid[])
		`, orgID, invoiceID, found); err != nil {
			return fmt.Errorf("failed to insert invoice items: %w", err)
		}

		if len(customerIDs) > 0 {
			if _, err := tx.Exec(ctx, `
				INSERT INTO customer_invoices (org_id, invoice_id, customer_id)
				SELECT $1, $2, unnest($3::uuid[])
			`, orgID, invoiceID, customerIDs); err != nil {
				return fmt.Errorf("failed to insert invoice customers: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, invoiceID)
}

// Get returns an invoice with its items and customers regardless of org.
// It backs the public document and print views.
func (s *Service) Get(ctx context.Context, invoiceID uuid.UUID) (*Detail, error) {
	header, err := scanHeader(s.pool.QueryRow(ctx, `
		SELECT `+headerColumns+` FROM invoices WHERE id = $1
	`, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return s.loadDetail(ctx, header)
}

// GetForOrg is Get restricted to the org's invoices.
func (s *Service) GetForOrg(ctx context.Context, orgID, invoiceID uuid.UUID) (*Detail, error) {
	header, err := scanHeader(s.pool.QueryRow(ctx, `
		SELECT `+headerColumns+` FROM invoices WHERE id = $1 AND org_id = $2
	`, invoiceID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return s.loadDetail(ctx, header)
}

func (s *Service) loadDetail(ctx context.Context, header *Header) (*Detail, error) {
	items, err := loadItems(ctx, s.pool, []uuid.UUID{header.ID})
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+customers.Columns+`
		FROM customers
		WHERE id IN (SELECT customer_id FROM customer_invoices WHERE invoice_id = $1)
		ORDER BY name ASC, id ASC
	`, header.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice customers: %w", err)
	}
	defer rows.Close()

	billed := []customers.Customer{}
	for rows.Next() {
		c, err := customers.ScanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice customer: %w", err)
		}
		billed = append(billed, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice customers: %w", err)
	}

	detailItems := items[header.ID]
	if detailItems == nil {
		detailItems = []Item{}
	}
	return &Detail{Header: *header, Items: detailItems, Customers: billed}, nil
}

// List returns the org's invoices that are not deleted, newest first, with
// items and customer summaries.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+headerColumns+`
		FROM invoices
		WHERE org_id = $1 AND status <> $2
		ORDER BY created_at DESC, id DESC
	`, orgID, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	invoices := []Invoice{}
	ids := []uuid.UUID{}
	for rows.Next() {
		header, err := scanHeader(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, Invoice{Header: *header})
		ids = append(ids, header.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	if len(ids) == 0 {
		return invoices, nil
	}

	items, err := loadItems(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	summaries, err := loadCustomerSummaries(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}

	for i := range invoices {
		id := invoices[i].ID
		invoices[i].Items = items[id]
		if invoices[i].Items == nil {
			invoices[i].Items = []Item{}
		}
		invoices[i].Customers = summaries[id]
		if invoices[i].Customers == nil {
			invoices[i].Customers = []CustomerSummary{}
		}
	}
	return invoices, nil
}

// AddService attaches a service and recomputes the total. Attaching an
// already attached service changes nothing.
func (s *Service) AddService(ctx context.Context, orgID, invoiceID, serviceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.InTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := lockEditable(ctx, tx, orgID, invoiceID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM services WHERE id = $1 AND org_id = $2)
		`, serviceID, orgID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check service: %w", err)
		}
		if !exists {
			return ErrServiceNotFound
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (org_id, invoice_id, service_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (invoice_id, service_id) DO NOTHING
		`, orgID, invoiceID, serviceID); err != nil {
			return fmt.Errorf("failed to attach service: %w", err)
		}

		var err error
		total, err = recomputeTotal(ctx, tx, invoiceID)
		return err
	})
	return total, err
}

// RemoveService detaches a service and recomputes the total.
func (s *Service) RemoveService(ctx context.Context, orgID, invoiceID, serviceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.InTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := lockEditable(ctx, tx, orgID, invoiceID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM invoice_items WHERE invoice_id = $1 AND service_id = $2
		`, invoiceID, serviceID)
		if err != nil {
			return fmt.Errorf("failed to detach service: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrItemNotFound
		}

		total, err = recomputeTotal(ctx, tx, invoiceID)
		return err
	})
	return total, err
}

// AddCustomer bills an additional customer. Repeating it changes nothing.
func (s *Service) AddCustomer(ctx context.Context, orgID, invoiceID, customerID uuid.UUID) error {
	return db.InTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := lockEditable(ctx, tx, orgID, invoiceID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND org_id = $2)
		`, customerID, orgID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check customer: %w", err)
		}
		if !exists {
			return ErrCustomerNotFound
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO customer_invoices (org_id, invoice_id, customer_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (invoice_id, customer_id) DO NOTHING
		`, orgID, invoiceID, customerID)
		if err != nil {
			return fmt.Errorf("failed to attach customer: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return touch(ctx, tx, invoiceID)
		}
		return nil
	})
}

// RemoveCustomer stops billing a customer.
func (s *Service) RemoveCustomer(ctx context.Context, orgID, invoiceID, customerID uuid.UUID) error {
	return db.InTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := lockEditable(ctx, tx, orgID, invoiceID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM customer_invoices WHERE invoice_id = $1 AND customer_id = $2
		`, invoiceID, customerID)
		if err != nil {
			return fmt.Errorf("failed to detach customer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCustomerNotAttached
		}
		return touch(ctx, tx, invoiceID)
	})
}

// Apply runs a guarded transition. Send is delegated to Send.
func (s *Service) Apply(ctx context.Context, orgID, invoiceID uuid.UUID, action Action) (Transition, error) {
	switch action {
	case ActionSend:
		return s.Send(ctx, orgID, invoiceID)
	case ActionPay, ActionCancel, ActionDelete:
		return s.transition(ctx, orgID, invoiceID, action)
	default:
		return Transition{}, fmt.Errorf("unknown invoice action %q", action)
	}
}

// Pay moves a sent invoice to paid.
func (s *Service) Pay(ctx context.Context, orgID, invoiceID uuid.UUID) (Transition, error) {
	return s.transition(ctx, orgID, invoiceID, ActionPay)
}

// Cancel returns a sent invoice to draft.
func (s *Service) Cancel(ctx context.Context, orgID, invoiceID uuid.UUID) (Transition, error) {
	return s.transition(ctx, orgID, invoiceID, ActionCancel)
}

// Delete soft-deletes a draft invoice.
func (s *Service) Delete(ctx context.Context, orgID, invoiceID uuid.UUID) (Transition, error) {
	return s.transition(ctx, orgID, invoiceID, ActionDelete)
}

// Send emails a draft invoice with its rendered PDF to every billed customer
// and then marks it sent. A non-draft invoice is left untouched and nothing
// is emailed. Renderer or mailer failures abort before the status changes.
func (s *Service) Send(ctx context.Context, orgID, invoiceID uuid.UUID) (Transition, error) {
	detail, err := s.GetForOrg(ctx, orgID, invoiceID)
	if err != nil {
		return Transition{}, err
	}
	if _, ok := Next(detail.Status, ActionSend); !ok {
		return rejected(ActionSend, detail.Status), nil
	}
	if len(detail.Customers) == 0 {
		return Transition{}, ErrNoRecipients
	}

	pdf, err := s.renderer.Render(ctx, invoiceID)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: render invoice: %w", ErrDependency, err)
	}

	msg := mailer.InvoiceMessage{
		InvoiceID: invoiceID,
		PayLink:   s.PayLink(invoiceID),
		Total:     detail.Total.StringFixed(2),
		DueDate:   detail.DueDate.String(),
		PDF:       pdf,
	}
	for _, c := range detail.Customers {
		msg.To = append(msg.To, mailer.Recipient{Name: c.Name, Email: c.Email})
	}
	if err := s.sender.SendInvoice(ctx, msg); err != nil {
		return Transition{}, fmt.Errorf("%w: send invoice email: %w", ErrDependency, err)
	}

	result, err := s.transition(ctx, orgID, invoiceID, ActionSend)
	if err != nil {
		return Transition{}, err
	}
	if !result.Applied {
		log.Warn().
			Str("invoice_id", invoiceID.String()).
			Str("status", string(result.Status)).
			Msg("Invoice email sent but status changed concurrently")
	}
	return result, nil
}

// transition performs the guarded update for action. When the guard
// rejects it the current status is reported unchanged.
func (s *Service) transition(ctx context.Context, orgID, invoiceID uuid.UUID, action Action) (Transition, error) {
	from := action.Requires()
	to, _ := Next(from, action)

	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices
		SET status = $4, updated_at = NOW()
		WHERE id = $1 AND org_id = $2 AND status = $3
	`, invoiceID, orgID, from, to)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to %s invoice: %w", action, err)
	}
	if tag.RowsAffected() == 1 {
		return Transition{Action: action, Applied: true, From: from, Status: to}, nil
	}

	var current Status
	err = s.pool.QueryRow(ctx, `
		SELECT status FROM invoices WHERE id = $1 AND org_id = $2
	`, invoiceID, orgID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transition{}, ErrInvoiceNotFound
		}
		return Transition{}, fmt.Errorf("failed to read invoice status: %w", err)
	}
	return rejected(action, current), nil
}

func rejected(action Action, current Status) Transition {
	return Transition{Action: action, Applied: false, From: current, Status: current}
}

// lockEditable row-locks the invoice for the rest of the transaction and
// checks that its items and customers may change.
func lockEditable(ctx context.Context, tx pgx.Tx, orgID, invoiceID uuid.UUID) (Status, error) {
	var status Status
	err := tx.QueryRow(ctx, `
		SELECT status FROM invoices WHERE id = $1 AND org_id = $2 FOR UPDATE
	`, invoiceID, orgID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvoiceNotFound
		}
		return "", fmt.Errorf("failed to lock invoice: %w", err)
	}
	if !status.Editable() {
		return status, ErrNotEditable
	}
	return status, nil
}

// recomputeTotal rewrites the total from the current item set.
func recomputeTotal(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE invoices
		SET total = (
			SELECT COALESCE(SUM(s.price), 0)
			FROM invoice_items ii
			JOIN services s ON s.id = ii.service_id
			WHERE ii.invoice_id = $1
		), updated_at = NOW()
		WHERE id = $1
		RETURNING total
	`, invoiceID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to recompute total: %w", err)
	}
	return total, nil
}

func touch(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `UPDATE invoices SET updated_at = NOW() WHERE id = $1`, invoiceID); err != nil {
		return fmt.Errorf("failed to touch invoice: %w", err)
	}
	return nil
}

func scanHeader(row pgx.Row) (*Header, error) {
	var h Header
	if err := row.Scan(&h.ID, &h.OrgID, &h.DueDate.Time, &h.Total, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// loadItems returns the items of each invoice in attach order.
func loadItems(ctx context.Context, q querier, invoiceIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT ii.invoice_id, ii.id,
		       s.id, s.org_id, s.parent_id, s.name, s.description, s.price, s.position, s.created_at, s.updated_at
		FROM invoice_items ii
		JOIN services s ON s.id = ii.service_id
		WHERE ii.invoice_id = ANY($1)
		ORDER BY ii.created_at ASC, ii.id ASC
	`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Item, len(invoiceIDs))
	for rows.Next() {
		var invoiceID uuid.UUID
		var item Item
		var parentID uuid.NullUUID
		svc := &item.Service
		if err := rows.Scan(
			&invoiceID, &item.ID,
			&svc.ID, &svc.OrgID, &parentID, &svc.Name, &svc.Description, &svc.Price, &svc.Position, &svc.CreatedAt, &svc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		if parentID.Valid {
			svc.ParentID = &parentID.UUID
		}
		item.ServiceID = svc.ID
		out[invoiceID] = append(out[invoiceID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice items: %w", err)
	}
	return out, nil
}

func loadCustomerSummaries(ctx context.Context, q querier, invoiceIDs []uuid.UUID) (map[uuid.UUID][]CustomerSummary, error) {
	rows, err := q.Query(ctx, `
		SELECT ci.invoice_id, c.id, c.name
		FROM customer_invoices ci
		JOIN customers c ON c.id = ci.customer_id
		WHERE ci.invoice_id = ANY($1)
		ORDER BY c.name ASC, c.id ASC
	`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice customers: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]CustomerSummary, len(invoiceIDs))
	for rows.Next() {
		var invoiceID uuid.UUID
		var c CustomerSummary
		if err := rows.Scan(&invoiceID, &c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan invoice customer: %w", err)
		}
		out[invoiceID] = append(out[invoiceID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice customers: %w", err)
	}
	return out, nil
}

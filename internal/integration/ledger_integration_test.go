package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/invoicething/invoicething/internal/auth"
	"github.com/invoicething/invoicething/internal/catalog"
	"github.com/invoicething/invoicething/internal/customers"
	"github.com/invoicething/invoicething/internal/invoices"
	"github.com/invoicething/invoicething/internal/mailer"
	"github.com/invoicething/invoicething/internal/orgs"
	"github.com/invoicething/invoicething/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, _ uuid.UUID) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.InvoiceMessage
	err  error
}

func (f *fakeSender) SendInvoice(_ context.Context, msg mailer.InvoiceMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// ledgerFixture is one org with a user, two services priced 10 and 25 plus
// a third priced 15, and one customer.
type ledgerFixture struct {
	pool     *pgxpool.Pool
	ledger   *invoices.Service
	renderer *fakeRenderer
	sender   *fakeSender

	orgID    uuid.UUID
	userID   uuid.UUID
	svc10    uuid.UUID
	svc25    uuid.UUID
	svc15    uuid.UUID
	customer uuid.UUID
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	f := &ledgerFixture{
		pool:     pool,
		renderer: &fakeRenderer{},
		sender:   &fakeSender{},
	}
	f.ledger = invoices.NewService(pool, f.renderer, f.sender, "https://billing.example")
	f.userID, f.orgID = seedOrg(t, pool, "owner@example.com", "acme")

	f.svc10 = seedService(t, pool, f.orgID, "Consulting", "10")
	f.svc25 = seedService(t, pool, f.orgID, "Hosting", "25")
	f.svc15 = seedService(t, pool, f.orgID, "Support", "15")
	f.customer = seedCustomer(t, pool, f.orgID, "Jane Doe", "jane@example.com")

	return f
}

func seedOrg(t *testing.T, pool *pgxpool.Pool, email, slug string) (userID, orgID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	userID, err := auth.NewService(pool).CreateUser(ctx, email, "password123")
	require.NoError(t, err)

	org, err := orgs.NewService(pool).CreateWithOwner(ctx, "Org "+slug, slug, userID)
	require.NoError(t, err)

	return userID, org.ID
}

func seedService(t *testing.T, pool *pgxpool.Pool, orgID uuid.UUID, name, price string) uuid.UUID {
	t.Helper()

	svc, err := catalog.NewCatalog(pool).Create(context.Background(), orgID, catalog.CreateParams{
		Name:  name,
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return svc.ID
}

func seedCustomer(t *testing.T, pool *pgxpool.Pool, orgID uuid.UUID, name, email string) uuid.UUID {
	t.Helper()

	c, err := customers.NewService(pool).Create(context.Background(), orgID, customers.CreateParams{
		Name:  name,
		Email: email,
	})
	require.NoError(t, err)
	return c.ID
}

func (f *ledgerFixture) createDraft(t *testing.T) *invoices.Detail {
	t.Helper()

	inv, err := f.ledger.Create(context.Background(), f.orgID, f.userID, invoices.CreateParams{
		DueDate:     "2026-12-31",
		ServiceIDs:  []uuid.UUID{f.svc10, f.svc25},
		CustomerIDs: []uuid.UUID{f.customer},
	})
	require.NoError(t, err)
	return inv
}

func (f *ledgerFixture) status(t *testing.T, invoiceID uuid.UUID) invoices.Status {
	t.Helper()

	var status invoices.Status
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`SELECT status FROM invoices WHERE id = $1`, invoiceID).Scan(&status))
	return status
}

func (f *ledgerFixture) total(t *testing.T, invoiceID uuid.UUID) decimal.Decimal {
	t.Helper()

	var total decimal.Decimal
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`SELECT total FROM invoices WHERE id = $1`, invoiceID).Scan(&total))
	return total
}

func (f *ledgerFixture) invoiceCount(t *testing.T) int {
	t.Helper()

	var n int
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM invoices WHERE org_id = $1`, f.orgID).Scan(&n))
	return n
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestIntegration_CreateInvoice_SumsServices(t *testing.T) {
	f := newLedgerFixture(t)

	inv := f.createDraft(t)

	require.Equal(t, invoices.StatusDraft, inv.Status)
	requireMoney(t, "35", inv.Total)
	require.Len(t, inv.Items, 2)
	require.Len(t, inv.Customers, 1)
	require.Equal(t, f.customer, inv.Customers[0].ID)
	require.Equal(t, "2026-12-31", inv.DueDate.String())
}

func TestIntegration_CreateInvoice_RejectsMissingServices(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Create(ctx, f.orgID, f.userID, invoices.CreateParams{DueDate: "2026-12-31"})
	require.ErrorIs(t, err, invoices.ErrNoServices)
	require.True(t, validation.IsValidationError(err))

	_, err = f.ledger.Create(ctx, f.orgID, f.userID, invoices.CreateParams{
		DueDate:    "2026-12-31",
		ServiceIDs: []uuid.UUID{uuid.New(), uuid.New()},
	})
	require.ErrorIs(t, err, invoices.ErrNoServices)

	// Another org's service counts as invalid too.
	_, otherOrg := seedOrg(t, f.pool, "other@example.com", "globex")
	foreign := seedService(t, f.pool, otherOrg, "Foreign", "99")
	_, err = f.ledger.Create(ctx, f.orgID, f.userID, invoices.CreateParams{
		DueDate:    "2026-12-31",
		ServiceIDs: []uuid.UUID{foreign},
	})
	require.ErrorIs(t, err, invoices.ErrNoServices)

	require.Zero(t, f.invoiceCount(t))
}

func TestIntegration_CreateInvoice_IgnoresUnknownServiceIDs(t *testing.T) {
	f := newLedgerFixture(t)

	inv, err := f.ledger.Create(context.Background(), f.orgID, f.userID, invoices.CreateParams{
		DueDate:    "2026-12-31",
		ServiceIDs: []uuid.UUID{f.svc10, uuid.New()},
	})
	require.NoError(t, err)
	requireMoney(t, "10", inv.Total)
	require.Len(t, inv.Items, 1)
}

func TestIntegration_CreateInvoice_ForeignCustomerPersistsNothing(t *testing.T) {
	f := newLedgerFixture(t)

	_, otherOrg := seedOrg(t, f.pool, "other@example.com", "globex")
	foreign := seedCustomer(t, f.pool, otherOrg, "Bob", "bob@example.com")

	_, err := f.ledger.Create(context.Background(), f.orgID, f.userID, invoices.CreateParams{
		DueDate:     "2026-12-31",
		ServiceIDs:  []uuid.UUID{f.svc10},
		CustomerIDs: []uuid.UUID{foreign},
	})
	require.ErrorIs(t, err, invoices.ErrCustomerNotFound)
	require.Zero(t, f.invoiceCount(t))
}

func TestIntegration_SendThenResendIsNoop(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	result, err := f.ledger.Send(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, invoices.StatusSent, result.Status)
	require.Equal(t, invoices.StatusSent, f.status(t, inv.ID))

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	require.Equal(t, "https://billing.example/invoice/"+inv.ID.String(), msg.PayLink)
	require.Equal(t, "35.00", msg.Total)
	require.Equal(t, []mailer.Recipient{{Name: "Jane Doe", Email: "jane@example.com"}}, msg.To)
	require.NotEmpty(t, msg.PDF)

	again, err := f.ledger.Send(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.Equal(t, invoices.StatusSent, again.Status)
	require.Equal(t, invoices.StatusSent, f.status(t, inv.ID))
	require.Len(t, f.sender.sent, 1, "a rejected send must not email")
	require.Equal(t, 1, f.renderer.calls)
}

func TestIntegration_SendWithoutCustomers(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	inv, err := f.ledger.Create(ctx, f.orgID, f.userID, invoices.CreateParams{
		DueDate:    "2026-12-31",
		ServiceIDs: []uuid.UUID{f.svc10},
	})
	require.NoError(t, err)

	_, err = f.ledger.Send(ctx, f.orgID, inv.ID)
	require.ErrorIs(t, err, invoices.ErrNoRecipients)
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))
	require.Zero(t, f.renderer.calls)
}

func TestIntegration_SendFailuresLeaveDraft(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	f.sender.err = errors.New("smtp relay down")
	_, err := f.ledger.Send(ctx, f.orgID, inv.ID)
	require.ErrorIs(t, err, invoices.ErrDependency)
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))

	f.sender.err = nil
	f.renderer.err = errors.New("renderer timeout")
	_, err = f.ledger.Send(ctx, f.orgID, inv.ID)
	require.ErrorIs(t, err, invoices.ErrDependency)
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))
	require.Empty(t, f.sender.sent)
}

func TestIntegration_PayOnDraftIsNoop(t *testing.T) {
	f := newLedgerFixture(t)
	inv := f.createDraft(t)

	result, err := f.ledger.Pay(context.Background(), f.orgID, inv.ID)
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Equal(t, invoices.StatusDraft, result.Status)
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))
}

func TestIntegration_CancelSentReturnsToDraft(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	_, err := f.ledger.Send(ctx, f.orgID, inv.ID)
	require.NoError(t, err)

	result, err := f.ledger.Cancel(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, invoices.StatusSent, result.From)
	require.Equal(t, invoices.StatusDraft, result.Status)
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))
}

func TestIntegration_AddAndRemoveServiceRecomputeTotal(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	total, err := f.ledger.AddService(ctx, f.orgID, inv.ID, f.svc15)
	require.NoError(t, err)
	requireMoney(t, "50", total)
	requireMoney(t, "50", f.total(t, inv.ID))

	// Attaching twice changes nothing.
	total, err = f.ledger.AddService(ctx, f.orgID, inv.ID, f.svc15)
	require.NoError(t, err)
	requireMoney(t, "50", total)

	var items int
	require.NoError(t, f.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice_items WHERE invoice_id = $1`, inv.ID).Scan(&items))
	require.Equal(t, 3, items)

	total, err = f.ledger.RemoveService(ctx, f.orgID, inv.ID, f.svc10)
	require.NoError(t, err)
	requireMoney(t, "40", total)

	detail, err := f.ledger.Get(ctx, inv.ID)
	require.NoError(t, err)
	requireMoney(t, "40", detail.Total)
	require.True(t, invoices.ItemsTotal(detail.Items).Equal(detail.Total))
}

func TestIntegration_RemoveServiceNotAttached(t *testing.T) {
	f := newLedgerFixture(t)
	inv := f.createDraft(t)

	_, err := f.ledger.RemoveService(context.Background(), f.orgID, inv.ID, f.svc15)
	require.ErrorIs(t, err, invoices.ErrItemNotFound)
	requireMoney(t, "35", f.total(t, inv.ID))
}

func TestIntegration_ItemsFrozenOncePaid(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	_, err := f.ledger.Send(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	paid, err := f.ledger.Pay(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	require.True(t, paid.Applied)

	_, err = f.ledger.AddService(ctx, f.orgID, inv.ID, f.svc15)
	require.ErrorIs(t, err, invoices.ErrNotEditable)
	err = f.ledger.RemoveCustomer(ctx, f.orgID, inv.ID, f.customer)
	require.ErrorIs(t, err, invoices.ErrNotEditable)
	requireMoney(t, "35", f.total(t, inv.ID))
}

func TestIntegration_CustomerAssociations(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)
	second := seedCustomer(t, f.pool, f.orgID, "Adam Smith", "adam@example.com")

	require.NoError(t, f.ledger.AddCustomer(ctx, f.orgID, inv.ID, second))
	require.NoError(t, f.ledger.AddCustomer(ctx, f.orgID, inv.ID, second))

	detail, err := f.ledger.GetForOrg(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	require.Len(t, detail.Customers, 2)
	require.Equal(t, "Adam Smith", detail.Customers[0].Name)

	require.NoError(t, f.ledger.RemoveCustomer(ctx, f.orgID, inv.ID, second))
	require.ErrorIs(t, f.ledger.RemoveCustomer(ctx, f.orgID, inv.ID, second), invoices.ErrCustomerNotAttached)
	require.ErrorIs(t, f.ledger.AddCustomer(ctx, f.orgID, inv.ID, uuid.New()), invoices.ErrCustomerNotFound)
}

func TestIntegration_TransitionMatrix(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	for _, from := range []invoices.Status{
		invoices.StatusDraft, invoices.StatusSent, invoices.StatusPaid,
		invoices.StatusCanceled, invoices.StatusDeleted,
	} {
		for _, action := range invoices.Actions {
			from, action := from, action
			t.Run(string(from)+"/"+string(action), func(t *testing.T) {
				inv := f.createDraft(t)
				_, err := f.pool.Exec(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, inv.ID, from)
				require.NoError(t, err)

				result, err := f.ledger.Apply(ctx, f.orgID, inv.ID, action)
				require.NoError(t, err)

				want, valid := invoices.Next(from, action)
				require.Equal(t, valid, result.Applied)
				if valid {
					require.Equal(t, want, f.status(t, inv.ID))
					return
				}
				require.Equal(t, from, result.Status)
				require.Equal(t, from, f.status(t, inv.ID))
			})
		}
	}
}

func TestIntegration_ListExcludesDeleted(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	kept := f.createDraft(t)
	gone := f.createDraft(t)

	result, err := f.ledger.Delete(ctx, f.orgID, gone.ID)
	require.NoError(t, err)
	require.True(t, result.Applied)

	list, err := f.ledger.List(ctx, f.orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, kept.ID, list[0].ID)
	require.Len(t, list[0].Items, 2)
	require.Len(t, list[0].Customers, 1)
	require.Equal(t, "Jane Doe", list[0].Customers[0].Name)

	// Deleted invoices remain readable by id.
	detail, err := f.ledger.Get(ctx, gone.ID)
	require.NoError(t, err)
	require.Equal(t, invoices.StatusDeleted, detail.Status)
}

func TestIntegration_CrossOrgMutationsRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	_, otherOrg := seedOrg(t, f.pool, "other@example.com", "globex")
	foreignService := seedService(t, f.pool, otherOrg, "Foreign", "99")

	_, err := f.ledger.AddService(ctx, otherOrg, inv.ID, f.svc15)
	require.ErrorIs(t, err, invoices.ErrInvoiceNotFound)

	_, err = f.ledger.AddService(ctx, f.orgID, inv.ID, foreignService)
	require.ErrorIs(t, err, invoices.ErrServiceNotFound)

	_, err = f.ledger.Pay(ctx, otherOrg, inv.ID)
	require.ErrorIs(t, err, invoices.ErrInvoiceNotFound)

	_, err = f.ledger.Send(ctx, otherOrg, inv.ID)
	require.ErrorIs(t, err, invoices.ErrInvoiceNotFound)

	list, err := f.ledger.List(ctx, otherOrg)
	require.NoError(t, err)
	require.Empty(t, list)

	requireMoney(t, "35", f.total(t, inv.ID))
	require.Equal(t, invoices.StatusDraft, f.status(t, inv.ID))
}

func TestIntegration_MutationsBumpUpdatedAt(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t)

	_, err := f.ledger.AddService(ctx, f.orgID, inv.ID, f.svc15)
	require.NoError(t, err)

	after, err := f.ledger.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, after.UpdatedAt.After(inv.UpdatedAt), "document cache keys depend on updated_at")
}

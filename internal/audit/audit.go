package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup             = "user.signup"
	EventLoginFailed            = "auth.login_failed"
	EventOrgCreated             = "org.created"
	EventCustomerCreated        = "customer.created"
	EventServiceCreated         = "service.created"
	EventInvoiceCreated         = "invoice.created"
	EventInvoiceServiceAdded    = "invoice.service_added"
	EventInvoiceServiceRemoved  = "invoice.service_removed"
	EventInvoiceCustomerAdded   = "invoice.customer_added"
	EventInvoiceCustomerRemoved = "invoice.customer_removed"
	EventInvoiceSent            = "invoice.sent"
	EventInvoicePaid            = "invoice.paid"
	EventInvoiceCanceled        = "invoice.canceled"
	EventInvoiceDeleted         = "invoice.deleted"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id"`
	OrgID       uuid.NullUUID          `db:"org_id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id"`
	SubjectID   uuid.NullUUID          `db:"subject_id"`
	Action      string                 `db:"action"`
	Meta        map[string]interface{} `db:"meta"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event. SubjectID is the
// entity the action was applied to (invoice, customer, service).
type LogParams struct {
	OrgID       *uuid.UUID
	ActorUserID *uuid.UUID
	SubjectID   *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (org_id, actor_user_id, subject_id, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := w.pool.Exec(ctx, query,
		toNullUUID(params.OrgID),
		toNullUUID(params.ActorUserID),
		toNullUUID(params.SubjectID),
		params.Action,
		metaJSON,
	)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("org_id", params.OrgID).
		Interface("subject_id", params.SubjectID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogOrgCreated(ctx context.Context, orgID, userID uuid.UUID, slug string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		SubjectID:   &orgID,
		Action:      EventOrgCreated,
		Meta: map[string]interface{}{
			"slug": slug,
		},
	})
}

func (w *Writer) LogCustomerCreated(ctx context.Context, orgID, userID, customerID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		SubjectID:   &customerID,
		Action:      EventCustomerCreated,
		Meta: map[string]interface{}{
			"name": name,
		},
	})
}

func (w *Writer) LogServiceCreated(ctx context.Context, orgID, userID, serviceID uuid.UUID, name string, children int) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		SubjectID:   &serviceID,
		Action:      EventServiceCreated,
		Meta: map[string]interface{}{
			"name":     name,
			"children": children,
		},
	})
}

// LogInvoiceEvent records an invoice mutation. meta may be nil.
func (w *Writer) LogInvoiceEvent(ctx context.Context, orgID, userID, invoiceID uuid.UUID, action string, meta map[string]interface{}) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		SubjectID:   &invoiceID,
		Action:      action,
		Meta:        meta,
	})
}

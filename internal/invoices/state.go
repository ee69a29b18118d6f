package invoices

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
	// StatusCanceled is accepted by storage but no action produces it.
	StatusCanceled Status = "canceled"
	StatusDeleted  Status = "deleted"
)

// Editable reports whether items and customers may still change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusSent
}

// Action is a guarded status transition.
type Action string

const (
	ActionSend   Action = "send"
	ActionPay    Action = "pay"
	ActionCancel Action = "cancel"
	ActionDelete Action = "delete"
)

type rule struct {
	from Status
	to   Status
}

var rules = map[Action]rule{
	ActionSend:   {from: StatusDraft, to: StatusSent},
	ActionPay:    {from: StatusSent, to: StatusPaid},
	ActionCancel: {from: StatusSent, to: StatusDraft},
	ActionDelete: {from: StatusDraft, to: StatusDeleted},
}

// Actions lists every transition in a stable order.
var Actions = []Action{ActionSend, ActionPay, ActionCancel, ActionDelete}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := rules[a]
	return ok
}

// Requires returns the status an invoice must be in for a to apply.
func (a Action) Requires() Status {
	return rules[a].from
}

// Next returns the status reached by applying a to current, and false when
// the guard rejects it.
func Next(current Status, a Action) (Status, bool) {
	r, ok := rules[a]
	if !ok || r.from != current {
		return current, false
	}
	return r.to, true
}

// Transition reports the outcome of a guarded status update. A rejected
// transition leaves the invoice unchanged with Status == From.
type Transition struct {
	Action  Action `json:"action"`
	Applied bool   `json:"applied"`
	From    Status `json:"from"`
	Status  Status `json:"status"`
}

// Package statemachine holds the one transition table per billing entity.
// Services consult it before every status change.
package statemachine

import (
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
)

type Action string

const (
	ActionQuote    Action = "quote"
	ActionRevert   Action = "revert_to_draft"
	ActionConfirm  Action = "confirm"
	ActionActivate Action = "activate"
	ActionClose    Action = "close"
	ActionCancel   Action = "cancel"
	ActionRestore  Action = "restore"
	ActionPay      Action = "pay"
)

var subscriptionTransitions = map[subscriptiondomain.SubscriptionStatus][]subscriptiondomain.SubscriptionStatus{
	subscriptiondomain.SubscriptionStatusDraft: {
		subscriptiondomain.SubscriptionStatusQuotation,
		subscriptiondomain.SubscriptionStatusConfirmed,
	},
	subscriptiondomain.SubscriptionStatusQuotation: {
		subscriptiondomain.SubscriptionStatusDraft,
		subscriptiondomain.SubscriptionStatusConfirmed,
		subscriptiondomain.SubscriptionStatusClosed,
	},
	subscriptiondomain.SubscriptionStatusConfirmed: {
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusClosed,
	},
	subscriptiondomain.SubscriptionStatusActive: {
		subscriptiondomain.SubscriptionStatusClosed,
	},
	subscriptiondomain.SubscriptionStatusClosed: {},
}

var invoiceTransitions = map[invoicedomain.InvoiceStatus][]invoicedomain.InvoiceStatus{
	invoicedomain.InvoiceStatusDraft: {
		invoicedomain.InvoiceStatusConfirmed,
		invoicedomain.InvoiceStatusCanceled,
	},
	invoicedomain.InvoiceStatusConfirmed: {
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusCanceled,
	},
	invoicedomain.InvoiceStatusPaid: {},
	invoicedomain.InvoiceStatusCanceled: {
		invoicedomain.InvoiceStatusDraft,
	},
}

var subscriptionActions = map[Action]subscriptiondomain.SubscriptionStatus{
	ActionQuote:    subscriptiondomain.SubscriptionStatusQuotation,
	ActionRevert:   subscriptiondomain.SubscriptionStatusDraft,
	ActionConfirm:  subscriptiondomain.SubscriptionStatusConfirmed,
	ActionActivate: subscriptiondomain.SubscriptionStatusActive,
	ActionClose:    subscriptiondomain.SubscriptionStatusClosed,
	ActionCancel:   subscriptiondomain.SubscriptionStatusClosed,
}

var invoiceActions = map[Action]invoicedomain.InvoiceStatus{
	ActionConfirm: invoicedomain.InvoiceStatusConfirmed,
	ActionCancel:  invoicedomain.InvoiceStatusCanceled,
	ActionRestore: invoicedomain.InvoiceStatusDraft,
	ActionPay:     invoicedomain.InvoiceStatusPaid,
}

func CanTransitionSubscription(from, to subscriptiondomain.SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func CanTransitionInvoice(from, to invoicedomain.InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SubscriptionTarget resolves a caller-facing action to its target status.
func SubscriptionTarget(action Action) (subscriptiondomain.SubscriptionStatus, bool) {
	status, ok := subscriptionActions[action]
	return status, ok
}

func InvoiceTarget(action Action) (invoicedomain.InvoiceStatus, bool) {
	status, ok := invoiceActions[action]
	return status, ok
}

func IsTerminalSubscription(status subscriptiondomain.SubscriptionStatus) bool {
	next, known := subscriptionTransitions[status]
	return known && len(next) == 0
}

// IsTerminalInvoice reports PAID only; CANCELED can be restored to DRAFT.
func IsTerminalInvoice(status invoicedomain.InvoiceStatus) bool {
	next, known := invoiceTransitions[status]
	return known && len(next) == 0
}

// SubscriptionSources lists the statuses from which target is reachable.
func SubscriptionSources(target subscriptiondomain.SubscriptionStatus) []subscriptiondomain.SubscriptionStatus {
	var out []subscriptiondomain.SubscriptionStatus
	for _, from := range SubscriptionStatuses() {
		if CanTransitionSubscription(from, target) {
			out = append(out, from)
		}
	}
	return out
}

func SubscriptionStatuses() []subscriptiondomain.SubscriptionStatus {
	return []subscriptiondomain.SubscriptionStatus{
		subscriptiondomain.SubscriptionStatusDraft,
		subscriptiondomain.SubscriptionStatusQuotation,
		subscriptiondomain.SubscriptionStatusConfirmed,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusClosed,
	}
}

func InvoiceStatuses() []invoicedomain.InvoiceStatus {
	return []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusConfirmed,
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusCanceled,
	}
}

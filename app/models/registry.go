package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&ProviderAccount{},
		&Document{},
		&Message{},
		&SMSMessage{},
		&Bill{},
		&InvoiceDocument{},
		&ExternalCustomer{},
		&ExternalInvoice{},
		&BillingWebhookEvent{},
	}
}

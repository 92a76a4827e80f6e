package constants

// Route constants shared by controllers and middleware
const (
	LoginRoute        = "/login"
	UserBillingRoute  = "/user/billing"
	AdminBillingRoute = "/admin/billing"
	DocumentsRoute    = "/uploads/documents"
	StripeWebhook     = "/webhooks/stripe"
)

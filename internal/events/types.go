package events

// Command names follow the format: domain.entity.action

// Reservation commands
const (
	CommandReservationCreate  = "reservation.create"
	CommandReservationModify  = "reservation.modify"
	CommandReservationCancel  = "reservation.cancel"
	CommandReservationCheckIn = "reservation.check_in"
)

// Billing commands
const (
	CommandInvoiceIssue   = "billing.invoice.issue"
	CommandInvoiceVoid    = "billing.invoice.void"
	CommandPaymentCapture = "billing.payment.capture"
	CommandPaymentRefund  = "billing.payment.refund"
)

// Housekeeping commands
const (
	CommandTaskAssign   = "housekeeping.task.assign"
	CommandTaskComplete = "housekeeping.task.complete"
	CommandRoomInspect  = "housekeeping.room.inspect"
)

// Guest commands
const (
	CommandGuestProfileMerge  = "guest.profile.merge"
	CommandGuestProfileUpdate = "guest.profile.update"
)

// Aggregate type constants
const (
	AggregateTypeReservation  = "reservation"
	AggregateTypeInvoice      = "invoice"
	AggregateTypePayment      = "payment"
	AggregateTypeHousekeeping = "housekeeping"
	AggregateTypeGuest        = "guest"
)

// Tenant module tags checked against command requirements
const (
	ModuleReservations = "reservations"
	ModuleBilling      = "billing"
	ModuleHousekeeping = "housekeeping"
	ModuleCRM          = "crm"
)

// Broker topics, one partitioned stream per domain
const (
	TopicReservations = "stayhub.reservations"
	TopicBilling      = "stayhub.billing"
	TopicHousekeeping = "stayhub.housekeeping"
	TopicGuests       = "stayhub.guests"
	TopicCommands     = "stayhub.commands"
)

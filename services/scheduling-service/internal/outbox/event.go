package outbox

// Topics carrying appointment lifecycle events. The Kafka topic name equals
// the event type (one topic per event type).
const (
	EventAppointmentBooked      = "scheduling.appointment.booked.v1"
	EventAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

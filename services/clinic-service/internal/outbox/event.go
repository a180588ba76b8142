package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentCreated       = "clinic.appointment.created.v1"
	EventAppointmentStatusChanged = "clinic.appointment.status_changed.v1"
	EventAppointmentCompleted     = "clinic.appointment.completed.v1"
	EventAppointmentDeleted       = "clinic.appointment.deleted.v1"
)

package shared

// OutboxStatus tracks an outbox row through the relay. The poller only picks up
// PENDING rows.
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// Final reports whether the relay is done with a row in this status.
func (s OutboxStatus) Final() bool {
	return s == OutboxStatusProcessed || s == OutboxStatusFailedToPublish
}

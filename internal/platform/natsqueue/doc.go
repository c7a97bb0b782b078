// Package natsqueue implements task.Queue on a NATS JetStream work-queue
// stream with a durable pull consumer. Messages are acknowledged explicitly;
// an unacknowledged message is redelivered after the consumer's AckWait, which
// running workers extend through Delivery.InProgress.
package natsqueue

// Package events carries task lifecycle notifications from the coordinator and
// workers to interested observers.
//
// Producers emit TaskEvent values through an EventEmitter without knowing who
// consumes them. Consumers implement EventHandler; the metrics collector and
// the Broker that feeds status streams are the two handlers wired in by the
// server.
package events

// Package edge mediates the transfer of values across one graph edge.
//
// Every edge owns a Policy. At runtime the policy becomes a Channel: values
// sent by the producer pass through the policy's adapter (identity, map,
// filter, buffer or window), are buffered under the configured backpressure
// strategy, and are surfaced to the consumer in the order the policy
// guarantees. Delivery order on an edge depends only on its policy and on
// the sequence of sends, never on the relative speed of producer and
// consumer.
package edge

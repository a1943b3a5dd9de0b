// Package thinrsbus provides the receive side of a point-to-point message
// bus on top of Redis Streams.
//
// A Receiver watches one stream through a private cursor, maps each entry
// it observes into an Envelope, and delivers the envelope to its subscribed
// consumers on a bounded worker pool, so slow consumers never hold up the
// next watch.
//
// # Quick Start
//
//	cfg := thinrsbus.ConfigFromEnv()
//	cfg.Namespace = "myapp"
//
//	queue := thinrsbus.NewRedisQueue(cfg, "orders")
//	receiver, err := thinrsbus.NewReceiver(ctx, queue, cfg)
//	if err != nil {
//	    return err // *thinrsbus.EndpointError
//	}
//	defer receiver.Close()
//
//	receiver.Subscribe(thinrsbus.TypeConsumer(func(ctx context.Context, env *thinrsbus.Envelope) error {
//	    body, _ := io.ReadAll(env.Body())
//	    fmt.Println("Received:", string(body))
//	    return nil
//	}, "order.created"))
//
// # Delivery
//
// Every subscribed consumer is asked IsHandled for each envelope. If any of
// them says yes, the envelope is delivered to all of them, and with the
// default RemoveDelivered policy the entry is then deleted from the stream.
// Envelopes nobody wants stay in the stream for other readers.
//
// # Faults
//
// A watch timeout simply re-issues the watch at the same position. Closing
// the queue under an outstanding watch stops the loop quietly. Any other
// transport error is logged and halts the loop; Receiver.Done and
// Receiver.Err report it, and a Supervisor can recreate the receiver.
// Consumer errors and panics are logged and never leave the fan-out.
//
// # Redis Streams Protocol
//
// Entries use envelope version "1" with fields: v, type, payload,
// produced_at, trace_id (optional), producer (optional). Any other string
// field is exposed as an envelope header.
package thinrsbus

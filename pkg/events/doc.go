/*
Package events publishes cluster lifecycle events.

The orchestrator reports progress that is not visible in the cluster state
field (perimeter created, each role launched, each node bootstrapped, sync,
termination) as events. The CLI subscribes to print progress; tests subscribe
to assert ordering.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Metadata["role"])
		}
	}()

Publish never blocks. Events are dropped when the broker or a subscriber is
behind, so events are advisory and must not drive orchestration decisions.
*/
package events

package invalidation

import "context"

// LocalBus applies events in-process only. It is used when no Redis is configured.
type LocalBus struct {
	applier  Applier
	recorder EventRecorder
}

// NewLocalBus creates a bus with no remote peers
func NewLocalBus(applier Applier, recorder EventRecorder) *LocalBus {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &LocalBus{applier: applier, recorder: recorder}
}

func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	err := apply(b.applier, event)
	b.recorder.RecordInvalidationEvent("publish", err)
	return err
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

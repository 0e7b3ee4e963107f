package bus

// Publisher broadcasts session events to interested consumers. Session
// code treats publish failures as non-fatal.
type Publisher interface {
	Publish(topic string, payload any) error
	Close() error
}

// Nop discards every event. Used when no bus is configured and in
// tuning trials.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
func (Nop) Close() error              { return nil }

package model

// PacketSource produces one batch of packets per pipeline tick.
type PacketSource interface {
	NextBatch() []Packet
}

// AttackInjector is implemented by sources that can fabricate a burst of
// packets shaped like a given attack on demand.
type AttackInjector interface {
	Forced(attack AttackType, n int) []Packet
}

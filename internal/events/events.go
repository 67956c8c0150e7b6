package events

// Kind identifies a message carried over a room's fanout.
type Kind string

const (
	// Snapshot carries the sorted participant list.
	Snapshot = Kind("snapshot")
	// VotingEnabled is sent when a new round starts and every vote was cleared.
	VotingEnabled = Kind("enable_voting")
	// VotingDisabled is sent when the round is locked and votes are revealed.
	VotingDisabled = Kind("disable_voting")
)

// Label is the short human text clients show for a lifecycle event.
func (k Kind) Label() string {
	switch k {
	case VotingEnabled:
		return "start voting"
	case VotingDisabled:
		return "votes are in"
	}
	return ""
}

// Lifecycle reports whether k is a round event rather than a snapshot.
func (k Kind) Lifecycle() bool {
	return k == VotingEnabled || k == VotingDisabled
}

// ForReveal returns the event emitted when the reveal flag becomes revealed.
func ForReveal(revealed bool) Kind {
	if revealed {
		return VotingDisabled
	}
	return VotingEnabled
}

package gesture

// MouthPhase is the mouth machine phase.
type MouthPhase string

const (
	MouthClosed MouthPhase = "closed"
	MouthOpen   MouthPhase = "open"
)

// MouthState is the hysteresis state of the mouth machine.
type MouthState struct {
	Phase MouthPhase `json:"phase"`
	Opens int        `json:"opens"`
}

// MouthMachine toggles between closed and open on a single MAR threshold.
// Each crossing fires immediately; chatter is left to upstream smoothing.
type MouthMachine struct {
	state MouthState
}

// NewMouthMachine creates a MouthMachine in the closed phase.
func NewMouthMachine() *MouthMachine {
	return &MouthMachine{state: MouthState{Phase: MouthClosed}}
}

// Step consumes one smoothed MAR and returns the event kind fired on this frame, if any.
func (m *MouthMachine) Step(mar float64, p Params) (Kind, bool) {
	switch {
	case m.state.Phase == MouthClosed && mar > p.MARThreshold:
		m.state.Phase = MouthOpen
		m.state.Opens++
		return KindMouthOpen, true
	case m.state.Phase == MouthOpen && mar <= p.MARThreshold:
		m.state.Phase = MouthClosed
		return KindMouthClose, true
	}
	return "", false
}

// State returns the current state.
func (m *MouthMachine) State() MouthState { return m.state }

// Reset returns the machine to closed and clears the open count.
func (m *MouthMachine) Reset() { m.state = MouthState{Phase: MouthClosed} }

package feed

import "time"

// Messages emitted by a pipeline. Each one names the run it belongs to so a
// consumer can discard stragglers from a run that has since been reset. The
// types double as Bubble Tea messages.

// Event is implemented by every message a pipeline emits.
type Event interface {
	RunID() string
}

// RunStartedMsg indicates a fresh run has begun.
type RunStartedMsg struct {
	Run        string
	Voice      string   // Voice picked for this run
	Categories []string // Categories sent to the backend
}

// BlockShownMsg indicates a block has become the visible subtitle.
type BlockShownMsg struct {
	Run      string
	Block    Block
	Duration time.Duration // Planned on-screen time; zero when audio paced
	Spoken   bool          // Block was handed to speech
}

// StatusChangedMsg indicates the run status has changed.
type StatusChangedMsg struct {
	Run    string
	Status Status
	Prev   Status
	Err    error // Set when the change was caused by a failure
}

// StreamOpenedMsg indicates a generation stream was requested.
type StreamOpenedMsg struct {
	Run       string
	Slot      Slot
	SessionID string
}

// StreamFinishedMsg indicates a generation stream ended, cleanly or not.
type StreamFinishedMsg struct {
	Run       string
	Slot      Slot
	SessionID string
	Words     int   // Words extracted from this stream
	Err       error // Transport error, nil on a clean [DONE]
}

// AudioEnabledMsg indicates the user unlocked speech for the run.
type AudioEnabledMsg struct {
	Run   string
	Voice string
}

// AudioDroppedMsg indicates speech for a block was given up.
type AudioDroppedMsg struct {
	Run string
	Seq int
	Err error
}

// RunDrainedMsg indicates every stream of the run has finished and its last
// block is off the screen. Nothing more will be shown until a reset.
type RunDrainedMsg struct {
	Run string
}

func (m RunStartedMsg) RunID() string     { return m.Run }
func (m BlockShownMsg) RunID() string     { return m.Run }
func (m StatusChangedMsg) RunID() string  { return m.Run }
func (m StreamOpenedMsg) RunID() string   { return m.Run }
func (m StreamFinishedMsg) RunID() string { return m.Run }
func (m AudioEnabledMsg) RunID() string   { return m.Run }
func (m AudioDroppedMsg) RunID() string   { return m.Run }
func (m RunDrainedMsg) RunID() string     { return m.Run }

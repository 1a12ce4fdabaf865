// Package input implements standard NES controller handling: a shift
// register loaded from button state on strobe, read serially one bit per
// $4016/$4017 access.
package input

import (
	"github.com/sirupsen/logrus"
)

// Button represents a NES controller button.
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Convenience aliases matching common frontend button naming.
const (
	A      = ButtonA
	B      = ButtonB
	Select = ButtonSelect
	Start  = ButtonStart
	Up     = ButtonUp
	Down   = ButtonDown
	Left   = ButtonLeft
	Right  = ButtonRight
)

// Controller represents one NES controller port.
type Controller struct {
	buttons uint8

	shiftRegister uint8
	strobe        bool

	buttonSnapshot uint8
	bitPosition    uint8

	readCount    uint64
	writeCount   uint64
	debugEnabled bool
	log          *logrus.Entry
}

// New creates a new Controller instance.
func New() *Controller {
	return &Controller{log: logrus.WithField("component", "input")}
}

// SetButton sets the pressed state of a single button.
func (c *Controller) SetButton(button Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
}

// SetButtons sets all eight button states at once, in NES order:
// A, B, Select, Start, Up, Down, Left, Right.
func (c *Controller) SetButtons(buttons [8]bool) {
	c.buttons = 0
	order := [8]Button{ButtonA, ButtonB, ButtonSelect, ButtonStart, ButtonUp, ButtonDown, ButtonLeft, ButtonRight}
	for i, pressed := range buttons {
		if pressed {
			c.buttons |= uint8(order[i])
		}
	}
}

// IsPressed returns true if the button is currently held.
func (c *Controller) IsPressed(button Button) bool {
	return c.buttons&uint8(button) != 0
}

// Write handles a write to the controller's strobe register ($4016).
// Each transition re-snapshots button state into the shift register and
// resets the read position, matching how real controller shift registers
// continuously reload while strobe is held high.
func (c *Controller) Write(value uint8) {
	c.writeCount++
	c.strobe = value&1 != 0
	if c.strobe {
		c.buttonSnapshot = c.buttons
		c.shiftRegister = c.buttons
		c.bitPosition = 0
	}
	if c.debugEnabled {
		c.log.WithFields(logrus.Fields{"value": value, "strobe": c.strobe}).Debug("controller write")
	}
}

// Read handles a read from the controller's data register. The serial bit is
// in bit 0 and bit 6 is always set, the open-bus value of the upper bits.
func (c *Controller) Read() uint8 {
	c.readCount++

	if c.strobe {
		c.bitPosition = 0
		return c.buttonSnapshot&1 | 0x40
	}

	var result uint8
	if c.bitPosition < 8 {
		result = c.shiftRegister & 1
		c.shiftRegister >>= 1
	} else {
		// After the eight button bits are exhausted, real hardware's shift
		// register keeps shifting in open-bus 1s.
		result = 1
	}
	c.bitPosition++

	if c.debugEnabled {
		c.log.WithFields(logrus.Fields{"bit": c.bitPosition - 1, "result": result}).Debug("controller read")
	}
	return result | 0x40
}

// Reset clears controller state to power-on defaults.
func (c *Controller) Reset() {
	c.buttons = 0
	c.shiftRegister = 0
	c.strobe = false
	c.buttonSnapshot = 0
	c.bitPosition = 0
	c.readCount = 0
	c.writeCount = 0
}

// EnableDebug toggles debug-level logging for this controller.
func (c *Controller) EnableDebug(enable bool) {
	c.debugEnabled = enable
}

// GetBitPosition returns the current shift-register read position (for tests).
func (c *Controller) GetBitPosition() uint8 {
	return c.bitPosition
}

// InputState owns the two standard controller ports.
type InputState struct {
	Controller1 *Controller
	Controller2 *Controller
}

// NewInputState creates both controller ports.
func NewInputState() *InputState {
	return &InputState{
		Controller1: New(),
		Controller2: New(),
	}
}

// Reset resets both controllers.
func (is *InputState) Reset() {
	is.Controller1.Reset()
	is.Controller2.Reset()
}

// EnableDebug toggles debug logging on both controllers.
func (is *InputState) EnableDebug(enable bool) {
	is.Controller1.EnableDebug(enable)
	is.Controller2.EnableDebug(enable)
}

// SetButtons1 sets controller 1's button state.
func (is *InputState) SetButtons1(buttons [8]bool) {
	is.Controller1.SetButtons(buttons)
}

// SetButtons2 sets controller 2's button state.
func (is *InputState) SetButtons2(buttons [8]bool) {
	is.Controller2.SetButtons(buttons)
}

// Read reads from a controller port ($4016/$4017). Both ports return bit 6
// set, as Controller.Read does; the extra OR on $4017 leaves the value unchanged.
func (is *InputState) Read(address uint16) uint8 {
	switch address {
	case 0x4016:
		return is.Controller1.Read()
	case 0x4017:
		return is.Controller2.Read() | 0x40
	default:
		return 0
	}
}

// Write writes to the controller strobe register; both controllers latch
// from the same $4016 write.
func (is *InputState) Write(address uint16, value uint8) {
	if address == 0x4016 {
		is.Controller1.Write(value)
		is.Controller2.Write(value)
	}
}

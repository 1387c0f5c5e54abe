package ordering

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bilgisen/altavoz/internal/models"
)

var (
	// ErrNotPrivileged is returned when a non-admin actor tries to change an order.
	ErrNotPrivileged = errors.New("actor is not allowed to reorder posts")
	// ErrDragInProgress is returned by Begin while another interaction is open.
	ErrDragInProgress = errors.New("drag already in progress")
	// ErrNotDragging is returned by Drop and Cancel without a prior Begin.
	ErrNotDragging = errors.New("no drag in progress")
	// ErrIndexOutOfRange is returned by Begin for a source outside the list.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvalidOrderType is returned for an order type other than main or side.
	ErrInvalidOrderType = models.ErrInvalidOrderType
)

// DragState is the phase of one drag interaction.
type DragState int

const (
	// StateIdle means no item is held.
	StateIdle DragState = iota
	// StateDragging means Begin picked up an item that has not been released.
	StateDragging
	// StateDropped means the held item was released over a destination.
	StateDropped
	// StateCancelled means the held item was released with no destination.
	StateCancelled
)

func (s DragState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateDropped:
		return "dropped"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("DragState(%d)", int(s))
}

// DragController turns drag gestures over an id list into reorderings.
// Only admin actors may interact; for everyone else the list is static.
// Dropped and Cancelled end an interaction and a new Begin may follow.
type DragController struct {
	mu     sync.Mutex
	actor  models.Actor
	ids    []string
	state  DragState
	source int
}

func NewDragController(actor models.Actor, ids []string) *DragController {
	return &DragController{
		actor: actor,
		ids:   append([]string(nil), ids...),
	}
}

// Enabled reports whether the actor may drag at all.
func (d *DragController) Enabled() bool {
	return d.actor.IsAdmin()
}

func (d *DragController) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Order returns the current sequence.
func (d *DragController) Order() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// Begin captures the index of the dragged item.
func (d *DragController) Begin(source int) error {
	if !d.Enabled() {
		return ErrNotPrivileged
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDragging {
		return ErrDragInProgress
	}
	if source < 0 || source >= len(d.ids) {
		return fmt.Errorf("%w: source %d of %d", ErrIndexOutOfRange, source, len(d.ids))
	}
	d.state = StateDragging
	d.source = source
	return nil
}

// Drop releases the item over dest. It returns the new full sequence and
// true when the order changed. A dest equal to the source emits nothing; a
// dest outside the list counts as a release outside any target and cancels.
func (d *DragController) Drop(dest int) ([]string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateDragging {
		return nil, false, ErrNotDragging
	}
	if dest < 0 || dest >= len(d.ids) {
		d.state = StateCancelled
		return nil, false, nil
	}

	d.state = StateDropped
	if dest == d.source {
		return nil, false, nil
	}

	d.ids = Move(d.ids, d.source, dest)
	return append([]string(nil), d.ids...), true, nil
}

// Cancel aborts the open interaction without touching the order.
func (d *DragController) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateDragging {
		return ErrNotDragging
	}
	d.state = StateCancelled
	return nil
}

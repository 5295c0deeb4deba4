package export

import (
	"context"
	"fmt"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
)

// ControlCommand is sent to a user interface to disable and re-enable its controls
// around long-running work.
type ControlCommand uint8

const (
	DisableUpstream ControlCommand = iota
	DisableSelf
	Pop
)

func (c ControlCommand) String() string {
	switch c {
	case DisableUpstream:
		return "DisableUpstream"
	case DisableSelf:
		return "DisableSelf"
	case Pop:
		return "Pop"
	default:
		return fmt.Sprintf("ControlCommand(%d)", uint8(c))
	}
}

// Controller emits control commands with stack discipline: every disabling command
// is pushed and later undone by one Pop.
type Controller struct {
	commands chan<- ControlCommand

	mu    sync.Mutex
	stack []ControlCommand
}

// NewController sends commands on the given channel.  A nil channel discards them.
func NewController(commands chan<- ControlCommand) *Controller {
	return &Controller{commands: commands}
}

func (c *Controller) send(cmd ControlCommand) {
	if c.commands != nil {
		c.commands <- cmd
	}
}

// Push sends a disabling command and records it.
func (c *Controller) Push(cmd ControlCommand) {
	c.mu.Lock()
	c.stack = append(c.stack, cmd)
	c.mu.Unlock()
	c.send(cmd)
}

// Pop undoes the most recent Push.
func (c *Controller) Pop() {
	c.mu.Lock()
	if len(c.stack) == 0 {
		c.mu.Unlock()
		dvid.Errorf("Control Pop without matching push\n")
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
	c.mu.Unlock()
	c.send(Pop)
}

// Depth returns the number of pushed commands not yet popped.
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// Batch disables upstream controls and this component's own controls, runs fn on the
// queue, and re-enables both once the task has finished, failed or been cancelled.
func (c *Controller) Batch(ctx context.Context, q *TaskQueue, fn TaskFunc) *Task {
	c.Push(DisableUpstream)
	c.Push(DisableSelf)
	t := q.Submit(ctx, fn)
	go func() {
		<-t.Done()
		c.Pop()
		c.Pop()
	}()
	return t
}

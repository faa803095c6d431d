//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// ErrDeviceRemoved is returned when a queue operation fails in a way
// that indicates the device is gone. It is fatal: the session tears
// down and the owner must rebuild from scratch.
var ErrDeviceRemoved = errors.New("gpu: device removed")

// DefaultFenceTimeout bounds every fence wait. A healthy GPU retires a
// frame in milliseconds; a wait this long means the device hung.
const DefaultFenceTimeout = 5 * time.Second

// QueueKind names one of the three submission ordering domains.
type QueueKind uint8

const (
	// QueueGraphics carries render passes and presentation.
	QueueGraphics QueueKind = iota
	// QueueCompute carries grid generation and glyph rasterization
	// dispatches.
	QueueCompute
	// QueueCopy carries standalone upload and readback work.
	QueueCopy

	queueKindCount
)

// String returns the queue kind name.
func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueCopy:
		return "copy"
	default:
		return fmt.Sprintf("QueueKind(%d)", uint8(k))
	}
}

// Queue is one ordering domain: a fence paired with a monotonically
// increasing timeline. Every submission reserves the next timeline
// value and signals the fence with it, so "has submission N completed"
// is a single comparison against the fence's observed value.
//
// All three queues multiplex over one hardware queue; what the split
// buys is independent completion tracking, so graphics work can wait on
// exactly the compute submission it consumes and nothing later.
type Queue struct {
	kind     QueueKind
	device   hal.Device
	hq       hal.Queue
	fence    hal.Fence
	timeline *Timeline
}

func newQueue(kind QueueKind, device hal.Device, hq hal.Queue) (*Queue, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create %s fence: %w", kind, err)
	}
	return &Queue{
		kind:     kind,
		device:   device,
		hq:       hq,
		fence:    fence,
		timeline: NewTimeline(),
	}, nil
}

// Submit sends command buffers and returns the timeline value that will
// be signalled when they complete.
func (q *Queue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	v := q.timeline.Reserve()
	if err := q.hq.Submit(cmds, q.fence, v); err != nil {
		return 0, fmt.Errorf("%w: %s queue submit %d: %v", ErrDeviceRemoved, q.kind, v, err)
	}
	return v, nil
}

// WaitFor blocks until the fence reaches v. Implements the frame ring's
// waiter contract.
func (q *Queue) WaitFor(v uint64, timeout time.Duration) error {
	if v == 0 || q.timeline.Reached(v) {
		return nil
	}
	if v > q.timeline.LastReserved() {
		return fmt.Errorf("%w: %s queue value %d", ErrTimelineRetired, q.kind, v)
	}
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}

	ok, err := q.device.Wait(q.fence, v, timeout)
	if err != nil {
		return fmt.Errorf("%w: %s queue wait %d: %v", ErrDeviceRemoved, q.kind, v, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s queue value %d after %v", ErrFenceTimeout, q.kind, v, timeout)
	}
	q.timeline.MarkSignalled(v)
	return nil
}

// WaitIdle blocks until every submission on this queue has completed.
func (q *Queue) WaitIdle(timeout time.Duration) error {
	return q.WaitFor(q.timeline.LastReserved(), timeout)
}

// Completed returns the last timeline value observed signalled.
func (q *Queue) Completed() uint64 { return q.timeline.Signalled() }

// Submitted returns the last timeline value reserved by Submit.
func (q *Queue) Submitted() uint64 { return q.timeline.LastReserved() }

// WriteBuffer schedules a buffer upload on the underlying queue.
func (q *Queue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) {
	q.hq.WriteBuffer(buf, offset, data)
}

// WriteTexture schedules a texture upload on the underlying queue.
func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) {
	q.hq.WriteTexture(dst, data, layout, size)
}

func (q *Queue) destroy() {
	q.device.DestroyFence(q.fence)
}

// QueueSet bundles the three ordering domains backing a session.
type QueueSet struct {
	Graphics *Queue
	Compute  *Queue
	Copy     *Queue
}

// NewQueueSet creates the three queues with fresh fences over the
// device's hardware queue.
func NewQueueSet(device hal.Device, hq hal.Queue) (*QueueSet, error) {
	g, err := newQueue(QueueGraphics, device, hq)
	if err != nil {
		return nil, err
	}
	c, err := newQueue(QueueCompute, device, hq)
	if err != nil {
		g.destroy()
		return nil, err
	}
	cp, err := newQueue(QueueCopy, device, hq)
	if err != nil {
		g.destroy()
		c.destroy()
		return nil, err
	}
	return &QueueSet{Graphics: g, Compute: c, Copy: cp}, nil
}

// DrainAll blocks until every queue is idle. Called before any resource
// teardown so destruction never races in-flight GPU reads.
func (s *QueueSet) DrainAll(timeout time.Duration) error {
	for _, q := range []*Queue{s.Graphics, s.Compute, s.Copy} {
		if err := q.WaitIdle(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases the fences. Callers drain first.
func (s *QueueSet) Destroy() {
	s.Graphics.destroy()
	s.Compute.destroy()
	s.Copy.destroy()
}

package growcut

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Device executes kernel iterations against the buffers it was created for.
//
// Submit may return before the iteration has run. Counter and ReadLabels are
// only meaningful after Sync has returned.
type Device interface {
	Submit(iteration int)
	Sync() error
	Counter(iteration int) uint32
	ReadLabels(iteration int, dst []uint32)
	Release()
}

// DeviceFactory acquires a device bound to a run's buffers
type DeviceFactory func(buffers *BufferSet, params RunParameters) (Device, error)

// CPUDevice runs a Kernel on a background goroutine that drains a queue of
// submitted iterations in order.
type CPUDevice struct {
	buffers *BufferSet
	kernel  Kernel

	queue   chan int
	pending sync.WaitGroup
	done    chan struct{}

	mu  sync.Mutex
	err error

	released atomic.Bool
}

// NewCPUDevice starts a CPU device for the given buffers. It is the default
// DeviceFactory.
func NewCPUDevice(buffers *BufferSet, params RunParameters) (Device, error) {
	if buffers == nil || len(buffers.Reference) == 0 {
		return nil, fmt.Errorf("%w: no buffers to bind", ErrDeviceUnavailable)
	}
	return NewKernelDevice(buffers, TiledKernel{TileSize: params.TileSize, Workers: params.Workers}), nil
}

// NewKernelDevice starts a device that executes the given kernel
func NewKernelDevice(buffers *BufferSet, kernel Kernel) *CPUDevice {
	d := &CPUDevice{
		buffers: buffers,
		kernel:  kernel,
		queue:   make(chan int, 64),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *CPUDevice) loop() {
	defer close(d.done)
	for iteration := range d.queue {
		d.mu.Lock()
		failed := d.err != nil
		d.mu.Unlock()

		if !failed {
			if err := d.kernel.Dispatch(d.buffers, iteration); err != nil {
				d.mu.Lock()
				d.err = fmt.Errorf("iteration %d: %w", iteration, err)
				d.mu.Unlock()
			}
		}
		d.pending.Done()
	}
}

// Submit enqueues an iteration without waiting for it to run
func (d *CPUDevice) Submit(iteration int) {
	d.pending.Add(1)
	d.queue <- iteration
}

// Sync blocks until every submitted iteration has completed
func (d *CPUDevice) Sync() error {
	d.pending.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Counter reads the update counter of one iteration
func (d *CPUDevice) Counter(iteration int) uint32 {
	return atomic.LoadUint32(&d.buffers.Counters[iteration])
}

// ReadLabels copies the label buffer written by the given iteration
func (d *CPUDevice) ReadLabels(iteration int, dst []uint32) {
	copy(dst, d.buffers.Labels[Current(iteration)])
}

// Release stops the worker goroutine and drops the buffers. It is safe to
// call more than once.
func (d *CPUDevice) Release() {
	if d.released.Swap(true) {
		return
	}
	close(d.queue)
	<-d.done
	d.buffers.release()
}

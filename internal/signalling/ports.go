package signalling

import (
	"math/rand"
	"sync"
)

// PortPool hands out local UDP ports for incoming RTP forwards. Every active
// forward holds its ports exclusively until released; the pool never reissues
// a held port. Allocation is randomized within the range so restarted
// forwards do not collide with sockets still in TIME_WAIT.
type PortPool struct {
	mu   sync.Mutex
	min  int
	max  int
	used map[int]struct{}
}

// NewPortPool creates a pool over the inclusive range [min, max].
func NewPortPool(min, max int) *PortPool {
	if min > max {
		min, max = max, min
	}
	return &PortPool{
		min:  min,
		max:  max,
		used: make(map[int]struct{}),
	}
}

// Allocate reserves a single port. Returns ErrNoPorts when the range is
// exhausted.
func (p *PortPool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocateLocked()
}

// AllocatePair reserves an audio and a video port together. Either both are
// reserved or neither.
func (p *PortPool) AllocatePair() (audio, video int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	audio, err = p.allocateLocked()
	if err != nil {
		return 0, 0, err
	}
	video, err = p.allocateLocked()
	if err != nil {
		delete(p.used, audio)
		return 0, 0, err
	}
	return audio, video, nil
}

func (p *PortPool) allocateLocked() (int, error) {
	size := p.max - p.min + 1
	if len(p.used) >= size {
		return 0, ErrNoPorts
	}

	// Random probing finds a free port quickly while the pool is mostly
	// empty; fall back to a linear scan once it fills up.
	for i := 0; i < 32; i++ {
		port := p.min + rand.Intn(size)
		if _, taken := p.used[port]; !taken {
			p.used[port] = struct{}{}
			return port, nil
		}
	}
	for port := p.min; port <= p.max; port++ {
		if _, taken := p.used[port]; !taken {
			p.used[port] = struct{}{}
			return port, nil
		}
	}
	return 0, ErrNoPorts
}

// Release returns ports to the pool. Releasing an unallocated port is a
// no-op.
func (p *PortPool) Release(ports ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range ports {
		delete(p.used, port)
	}
}

// InUse reports how many ports are currently allocated.
func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}

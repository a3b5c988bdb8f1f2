package chunkstore

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
)

// Picker orders the replicas of a chunk for reading.
type Picker interface {
	Order(replicas []string) []string
	Tag() string
}

var PickerDefaultTag = "ordered"

var lb = &pickerRegistry{}

func init() {
	RegisterPicker(orderedPicker{})
	RegisterPicker(&randomPicker{r: rand.New(rand.NewSource(rand.Int63()))})
	RegisterPicker(&roundRobinPicker{})
}

type pickerRegistry struct {
	mu sync.Mutex
	re map[string]Picker
}

func RegisterPicker(p Picker) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.re == nil {
		lb.re = make(map[string]Picker)
	}
	if _, ok := lb.re[p.Tag()]; ok {
		return fmt.Errorf("picker %v already registered", p.Tag())
	}
	lb.re[p.Tag()] = p
	return nil
}

// UsePicker returns the picker registered under name, falling back to the default.
func UsePicker(name string) Picker {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if p, ok := lb.re[name]; ok {
		return p
	}
	return lb.re[PickerDefaultTag]
}

// orderedPicker reads in placement order, most free space first.
type orderedPicker struct{}

func (orderedPicker) Order(replicas []string) []string {
	return append([]string(nil), replicas...)
}

func (orderedPicker) Tag() string { return "ordered" }

type randomPicker struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (p *randomPicker) Order(replicas []string) []string {
	out := append([]string(nil), replicas...)
	p.mu.Lock()
	p.r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	p.mu.Unlock()
	return out
}

func (p *randomPicker) Tag() string { return "random" }

// roundRobinPicker rotates the starting replica on every call.
type roundRobinPicker struct {
	next atomic.Uint64
}

func (p *roundRobinPicker) Order(replicas []string) []string {
	n := len(replicas)
	if n == 0 {
		return nil
	}
	start := int((p.next.Add(1) - 1) % uint64(n))
	out := make([]string, 0, n)
	out = append(out, replicas[start:]...)
	out = append(out, replicas[:start]...)
	return out
}

func (p *roundRobinPicker) Tag() string { return "roundrobin" }

package core

import "fmt"

// IndexPool hands out the lowest free index, starting at 1. Released indices
// are reused before new ones are created.
type IndexPool struct {
	owners []bool
}

func NewIndexPool() *IndexPool {
	return &IndexPool{}
}

// Acquire takes the lowest free index.
func (p *IndexPool) Acquire() int {
	for i, taken := range p.owners {
		// Existing free spot. Take it.
		if !taken {
			p.owners[i] = true
			return i + 1
		}
	}
	// No free slot, push a new one.
	p.owners = append(p.owners, true)
	return len(p.owners)
}

// Release frees index so a later Acquire can take it again.
func (p *IndexPool) Release(index int) error {
	if index < 1 || index > len(p.owners) {
		return fmt.Errorf("index pool: index '%d' out of range (max=%d). Nothing was done", index, len(p.owners))
	}
	if !p.owners[index-1] {
		return fmt.Errorf("index pool: index '%d' is not taken. Nothing was done", index)
	}
	p.owners[index-1] = false
	return nil
}

// InUse reports how many indices are currently taken.
func (p *IndexPool) InUse() int {
	n := 0
	for _, taken := range p.owners {
		if taken {
			n++
		}
	}
	return n
}

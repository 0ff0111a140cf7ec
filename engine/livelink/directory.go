package livelink

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-livelink/engine/core"
)

// Directory tracks every open source so sources talking to the same host can
// tell their subjects apart. One Directory is shared by all sources of a
// process and handed to them explicitly.
type Directory struct {
	mu    sync.Mutex
	hosts map[string]*core.IndexPool
}

func NewDirectory() *Directory {
	return &Directory{hosts: make(map[string]*core.IndexPool)}
}

// Acquire registers a new source for the endpoint host and returns its
// instance index, the lowest free one starting at 1.
func (d *Directory) Acquire(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.hosts[host]
	if !ok {
		pool = core.NewIndexPool()
		d.hosts[host] = pool
	}
	return pool.Acquire()
}

// Release returns index to the pool of host.
func (d *Directory) Release(host string, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.hosts[host]
	if !ok {
		return fmt.Errorf("directory: no source registered for %q", host)
	}
	if err := pool.Release(index); err != nil {
		return err
	}
	if pool.InUse() == 0 {
		delete(d.hosts, host)
	}
	return nil
}

// Count is the number of open sources for host.
func (d *Directory) Count(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pool, ok := d.hosts[host]; ok {
		return pool.InUse()
	}
	return 0
}

// Total is the number of open sources.
func (d *Directory) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, pool := range d.hosts {
		n += pool.InUse()
	}
	return n
}

// Prefix is the subject name prefix for the source with index on endpoint,
// labelled with host. It is empty while that source is the only one talking
// to endpoint.
func (d *Directory) Prefix(endpoint, host string, index int) string {
	if d.Count(endpoint) < 2 {
		return ""
	}
	return InstancePrefix(host, index)
}

// InstancePrefix formats the prefix of instance index on host: "host:" for
// the first instance, "host{n}:" for the others.
func InstancePrefix(host string, index int) string {
	if index <= 1 {
		return host + ":"
	}
	return fmt.Sprintf("%s{%d}:", host, index)
}

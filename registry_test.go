package tcpecho

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestRegistryAddRemove(t *testing.T) {
	r := newRegistry()
	sc1 := &serveconn{untrackedCh: make(chan struct{})}
	sc2 := &serveconn{untrackedCh: make(chan struct{})}

	assert.Assert(t, r.add(sc1, 0))
	assert.Assert(t, r.add(sc2, 0))
	assert.Equal(t, r.size(), 2)

	left, removed := r.remove(sc1)
	assert.Assert(t, removed)
	assert.Equal(t, left, 1)

	// removing the same connection again is a no-op
	left, removed = r.remove(sc1)
	assert.Assert(t, !removed)
	assert.Equal(t, left, 1)

	left, removed = r.remove(sc2)
	assert.Assert(t, removed)
	assert.Equal(t, left, 0)
	assert.Equal(t, r.size(), 0)
}

func TestRegistryRemoveNeverAdded(t *testing.T) {
	r := newRegistry()
	sc := &serveconn{untrackedCh: make(chan struct{})}

	left, removed := r.remove(sc)
	assert.Assert(t, !removed)
	assert.Equal(t, left, 0)
}

func TestRegistryMaxConns(t *testing.T) {
	r := newRegistry()
	sc1 := &serveconn{untrackedCh: make(chan struct{})}
	sc2 := &serveconn{untrackedCh: make(chan struct{})}
	sc3 := &serveconn{untrackedCh: make(chan struct{})}

	assert.Assert(t, r.add(sc1, 2))
	assert.Assert(t, r.add(sc2, 2))
	assert.Assert(t, !r.add(sc3, 2))

	r.remove(sc1)
	assert.Assert(t, r.add(sc3, 2))
}

func TestRegistryConcurrent(t *testing.T) {
	r := newRegistry()

	const conns = 100
	scs := make([]*serveconn, conns)
	for i := range scs {
		scs[i] = &serveconn{untrackedCh: make(chan struct{})}
	}

	var wg sync.WaitGroup
	for i := range scs {
		sc := scs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.add(sc, 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, r.size(), conns)

	// every connection removed twice concurrently, each drop must count once
	for i := range scs {
		sc := scs[i]
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				r.remove(sc)
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, r.size(), 0)
}

func TestRegistryRange(t *testing.T) {
	r := newRegistry()
	for i := 0; i < 3; i++ {
		r.add(&serveconn{untrackedCh: make(chan struct{})}, 0)
	}

	var visited int
	r.rangeConns(func(sc *serveconn) bool {
		visited++
		return true
	})
	assert.Equal(t, visited, 3)

	visited = 0
	r.rangeConns(func(sc *serveconn) bool {
		visited++
		return false
	})
	assert.Equal(t, visited, 1)
}

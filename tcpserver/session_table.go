package tcpserver

import "sync"

// sessionTable is a concurrent map of live sessions keyed by session ID.
type sessionTable struct {
	m sync.Map
}

func (t *sessionTable) store(id uint32, s TCPServerSession) {
	t.m.Store(id, s)
}

func (t *sessionTable) delete(id uint32) {
	t.m.Delete(id)
}

func (t *sessionTable) get(id uint32) (TCPServerSession, bool) {
	v, ok := t.m.Load(id)
	if !ok {
		return nil, false
	}

	return v.(TCPServerSession), true
}

// rangeAll calls f for every session until f returns false.
func (t *sessionTable) rangeAll(f func(id uint32, s TCPServerSession) bool) {
	t.m.Range(func(k, v any) bool {
		return f(k.(uint32), v.(TCPServerSession))
	})
}

func (t *sessionTable) len() int {
	n := 0
	t.rangeAll(func(uint32, TCPServerSession) bool {
		n++
		return true
	})

	return n
}

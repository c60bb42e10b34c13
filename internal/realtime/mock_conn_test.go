package realtime

import (
	"io"
	"sync"
)

type fakeConn struct {
	mu     sync.Mutex
	writes []frame
	reads  []readResult
	closes int
}

type frame struct {
	messageType int
	payload     []byte
}

type readResult struct {
	messageType int
	payload     []byte
	err         error
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, frame{
		messageType: messageType,
		payload:     append([]byte(nil), data...),
	})
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reads) == 0 {
		return 0, nil, io.EOF
	}
	next := c.reads[0]
	c.reads = c.reads[1:]
	return next.messageType, append([]byte(nil), next.payload...), next.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) writeAt(i int) frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[i]
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

package client

import (
	"context"
	"errors"
)

// ErrBufferFull names the condition of the single slot already holding an
// undelivered buffer. Send does not return it: Send waits for the slot
// instead (see Send).
var ErrBufferFull = errors.New("client: buffer slot already occupied")

// BufferClient hands the encoded buffer back to an embedding caller via a
// bounded single-slot channel, instead of putting it over the network.
// Used in embedded mode (§6's submit(bytes) entry point).
type BufferClient struct {
	out chan []byte
}

var _ Client = (*BufferClient)(nil)

// NewBufferClient returns a BufferClient with a capacity-1 channel.
func NewBufferClient() *BufferClient {
	return &BufferClient{out: make(chan []byte, 1)}
}

// Send places body into the single slot. If the slot is free it returns
// at once; if the slot is occupied it blocks until a concurrent Recv
// frees it or ctx is done, in which case it returns ctx.Err().
func (b *BufferClient) Send(ctx context.Context, body []byte) error {
	select {
	case b.out <- body:
		return nil
	default:
	}
	select {
	case b.out <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until a buffer is available or ctx is done.
func (b *BufferClient) Recv(ctx context.Context) ([]byte, error) {
	select {
	case body := <-b.out:
		return body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

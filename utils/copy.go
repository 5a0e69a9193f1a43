package utils

import (
	"context"
	"io"
	"sync"
)

var (
	pool = sync.Pool{
		New: func() interface{} {
			buffer := make([]byte, 1024*1024)
			return &buffer
		},
	}
)

func ReadAllWithLimit(
	fd io.Reader, limit int) ([]byte, error) {

	// If we reach the limit signal this as an error!
	res, err := io.ReadAll(io.LimitReader(fd, int64(limit)))
	if len(res) >= limit {
		return nil, Wrap(IOError, "Memory buffer exceeded")
	}

	return res, err
}

// An io.Copy() that respects context cancellations. A cancelled
// context is reported as an error so callers never mistake a
// truncated copy for a complete one.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var offset int64
	buff := pool.Get().(*[]byte)
	defer pool.Put(buff)

	for {
		select {
		case <-ctx.Done():
			return offset, ctx.Err()

		default:
			n, err := src.Read(*buff)
			if n > 0 {
				_, werr := dst.Write((*buff)[:n])
				if werr != nil {
					return offset, werr
				}
				offset += int64(n)
			}

			if err == io.EOF {
				return offset, nil
			}

			if err != nil {
				return offset, err
			}
		}
	}
}

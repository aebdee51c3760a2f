package conn

import (
	"bytes"
	"context"
	"strconv"

	"github.com/evohttp/evohttp/pkg/constants"
	"github.com/evohttp/evohttp/pkg/errors"
)

// chunkedRecv implements Phase B for chunked Transfer-Encoding. A single
// call delivers bytes from at most one chunk; the caller advances through
// the body with successive calls. It returns (0, nil) once the terminating
// zero-length chunk has been observed.
func (c *Context) chunkedRecv(ctx context.Context, out []byte) (int, error) {
	if !c.flags.has(FlagEndingChunkRequired) {
		return 0, nil
	}
	if !c.flags.has(FlagReadingChunk) {
		if err := c.beginChunk(ctx); err != nil {
			return 0, err
		}
		if c.chunkSize == 0 {
			// Terminating chunk: ENDING_CHUNK_REQUIRED already cleared by
			// beginChunk.
			return 0, nil
		}
	}

	need := min(c.chunkSize-c.chunkRead, len(out))
	drained := 0
	if c.staging.Len() > 0 {
		n := min(need, c.staging.Len())
		copy(out[:n], c.staging.Bytes()[:n])
		c.staging.Consume(n)
		drained = n
	}
	if drained < need {
		n, err := c.transport.Read(c.handle, out[drained:need], c.timeouts.Recv)
		drained += n
		if err != nil {
			c.chunkRead += drained
			return drained, err
		}
	}
	c.chunkRead += drained

	if c.chunkRead == c.chunkSize {
		c.flags &^= FlagReadingChunk
		c.chunkRead = 0
		c.chunkSize = 0
	}
	return drained, nil
}

// beginChunk parses the next chunk-size line, discarding a leading CRLF
// left over from the previous chunk's body if present. On success either
// c.chunkSize is left at 0 (terminating chunk, ENDING_CHUNK_REQUIRED
// cleared) or it is set to the parsed size and FlagReadingChunk is set.
func (c *Context) beginChunk(ctx context.Context) error {
	if err := c.fillStagingAtLeast(ctx, 3); err != nil {
		return err
	}

	if bytes.HasPrefix(c.staging.Bytes(), []byte(constants.PropertyDelimiter)) {
		c.staging.Consume(len(constants.PropertyDelimiter))
	}

	idx, err := c.findChunkSizeTerminator(ctx)
	if err != nil {
		return err
	}

	line := c.staging.Bytes()[:idx]
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	size, err := strconv.ParseUint(string(bytes.TrimSpace(line)), 16, 32)
	if err != nil {
		return errors.NewMalformed("conn.Recv", "unparseable chunk size", err)
	}
	c.staging.Consume(idx + len(constants.PropertyDelimiter))

	if size == 0 {
		c.flags &^= FlagEndingChunkRequired
		c.chunkSize = 0
		c.logger.Debugf("terminating chunk observed")
		return nil
	}
	c.flags |= FlagReadingChunk
	c.chunkSize = int(size)
	c.chunkRead = 0
	c.logger.Debugf("chunk size parsed: %d", c.chunkSize)
	return nil
}

// findChunkSizeTerminator fills staging until the CRLF ending the
// chunk-size line is visible, returning its offset within staging.Bytes().
func (c *Context) findChunkSizeTerminator(ctx context.Context) (int, error) {
	for {
		if idx := bytes.Index(c.staging.Bytes(), []byte(constants.PropertyDelimiter)); idx >= 0 {
			return idx, nil
		}
		if c.staging.Free() == 0 {
			c.staging.Compact()
			if c.staging.Free() == 0 {
				return 0, errors.NewMalformed("conn.Recv", "chunk-size terminator not found in full staging buffer", nil)
			}
		}
		n, err := c.transport.Read(c.handle, c.staging.FillSlot(), c.timeouts.Recv)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, errors.NewTransport("conn.Recv", nil)
		}
		c.staging.Advance(n)
	}
}

// fillStagingAtLeast reads from the transport until staging holds at least
// n unconsumed bytes, compacting when the buffer fills up first.
func (c *Context) fillStagingAtLeast(ctx context.Context, n int) error {
	for c.staging.Len() < n {
		if c.staging.Free() == 0 {
			c.staging.Compact()
			if c.staging.Free() == 0 {
				return errors.NewBufferTooSmall("conn.Recv", "staging buffer too small to hold chunk framing")
			}
		}
		read, err := c.transport.Read(c.handle, c.staging.FillSlot(), c.timeouts.Recv)
		if err != nil {
			return err
		}
		if read == 0 {
			return errors.NewTransport("conn.Recv", nil)
		}
		c.staging.Advance(read)
	}
	return nil
}

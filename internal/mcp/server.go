package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultMaxMessageBytes = 8 * 1024 * 1024

// lockedEncoder serializes whole responses so that concurrent handlers
// never interleave partial lines on the output stream.
type lockedEncoder struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (e *lockedEncoder) Encode(value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoder.Encode(value)
}

// Serve reads newline-delimited JSON-RPC messages from input and writes one
// response line per request to output. Up to MaxInFlight requests run at
// once; responses are written as each finishes, so their order may differ
// from the order of the requests. A line longer than the message limit is
// answered with InvalidRequest and skipped. Serve returns when input is
// exhausted and every in-flight request has been answered.
func (r *Router) Serve(ctx context.Context, input io.Reader, output io.Writer) error {
	reader := bufio.NewReaderSize(input, 64*1024)
	encoder := &lockedEncoder{encoder: json.NewEncoder(output)}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.maxInFlight)

	var readErr error
	for groupCtx.Err() == nil {
		line, tooLong, err := readMessage(reader, r.maxMessageBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		if tooLong {
			r.logger.Warn("oversized message skipped", "limit_bytes", r.maxMessageBytes)
			response := errorResponse(nil, protocolErrorf(KindInvalidRequest, "message exceeds %d bytes", r.maxMessageBytes))
			if err := encoder.Encode(response); err != nil {
				readErr = fmt.Errorf("write response: %w", err)
				break
			}
			continue
		}
		message := bytes.TrimSpace(line)
		if len(message) == 0 {
			continue
		}
		group.Go(func() error {
			response := r.Handle(groupCtx, message)
			if response == nil {
				return nil
			}
			if err := encoder.Encode(response); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("read request: %w", readErr)
	}
	return nil
}

// readMessage returns the next line of input. A line longer than limit is
// consumed and dropped, with tooLong set. io.EOF is returned only when no
// bytes remain.
func readMessage(reader *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, readErr := reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case readErr == nil:
			return line, tooLong, nil
		case errors.Is(readErr, bufio.ErrBufferFull):
			continue
		case errors.Is(readErr, io.EOF):
			if len(line) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return line, tooLong, nil
		default:
			return nil, false, readErr
		}
	}
}

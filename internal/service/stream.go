package service

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"secretary-backend/internal/model"
	"secretary-backend/pkg/logger"
)

// readStream consumes a newline-delimited JSON stream, invoking onDelta for
// every content fragment in the order received. It returns nil on a done
// record or end of stream, the context error on cancellation, and the read
// error otherwise. The scanner hands back a trailing non-terminated record at
// EOF, so a final partial line still goes through the same record rule.
func readStream(ctx context.Context, body io.Reader, onDelta func(string)) error {
	r := bufio.NewScanner(body)
	r.Buffer(make([]byte, 64*1024), 1024*1024)

	for r.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(r.Text())
		if line == "" {
			continue
		}

		if applyStreamRecord(line, onDelta) {
			// Done record: stop immediately, without consuming anything after it.
			return nil
		}
	}

	if err := r.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	return nil
}

// applyStreamRecord parses one record and reports whether it ended the
// stream. Records that fail to parse or match neither recognized shape are
// dropped without aborting the stream.
func applyStreamRecord(line string, onDelta func(string)) bool {
	var record model.StreamRecord
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		logger.Debugf("Dropping malformed stream record: %v", err)
		return false
	}

	if record.Done {
		return true
	}

	if record.Message != nil {
		onDelta(record.Message.Content)
	}

	return false
}

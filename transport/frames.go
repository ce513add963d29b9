package transport

import (
	"bufio"
	"bytes"
	"io"
	"net/http"

	"github.com/casualjim/confab/provider"
	"github.com/openai/openai-go/packages/ssestream"
)

const maxLine = 8 << 20

func sseFrames(resp *http.Response) provider.Frames {
	return func(yield func([]byte, error) bool) {
		dec := ssestream.NewDecoder(resp)
		defer dec.Close()
		for dec.Next() {
			data := dec.Event().Data
			if len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			if !yield(bytes.Clone(data), nil) {
				return
			}
		}
		if err := dec.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func ndjsonFrames(body io.Reader) provider.Frames {
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			if !yield(bytes.Clone(line), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func wholeFrame(body io.Reader) provider.Frames {
	return func(yield func([]byte, error) bool) {
		data, err := io.ReadAll(body)
		if err != nil {
			yield(nil, err)
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return
		}
		yield(data, nil)
	}
}

// Package httpreq performs HTTP requests as tasks.
package httpreq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/poa00/go-tasktree/tasking"
)

// DefaultMaxBody caps how much of a response body a Query reads.
const DefaultMaxBody int64 = 8 << 20

var (
	// ErrNoURL is reported when a Query is started without a target.
	ErrNoURL = errors.New("no request url")

	// ErrStatus is reported when the response carries an error status.
	ErrStatus = errors.New("http error status")
)

// Query performs one HTTP request as a task. Configure the exported fields
// in the task's setup handler; read StatusCode and Body in its done or
// error handler. A Request takes precedence over URL and Method.
type Query struct {
	URL     string
	Method  string // defaults to GET
	Header  http.Header
	Client  *http.Client // defaults to http.DefaultClient
	Request *http.Request
	MaxBody int64

	StatusCode int
	Body       []byte

	cancel context.CancelFunc
}

var _ tasking.Task = (*Query)(nil)

func (q *Query) Start(ctx context.Context, done func(error)) {
	req := q.Request
	if req == nil {
		if q.URL == "" {
			done(ErrNoURL)
			return
		}
		method := q.Method
		if method == "" {
			method = http.MethodGet
		}
		var err error
		req, err = http.NewRequest(method, q.URL, nil)
		if err != nil {
			done(fmt.Errorf("build request: %w", err))
			return
		}
		for k, vs := range q.Header {
			req.Header[k] = vs
		}
	}

	client := q.Client
	if client == nil {
		client = http.DefaultClient
	}

	// the request's lifetime is decoupled from the setup context; Cancel
	// ends it
	cctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	req = req.WithContext(cctx)

	go func() {
		defer cancel()
		resp, err := client.Do(req)
		if err != nil {
			done(fmt.Errorf("http query: %w", err))
			return
		}
		defer resp.Body.Close()

		limit := q.MaxBody
		if limit <= 0 {
			limit = DefaultMaxBody
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			done(fmt.Errorf("read response: %w", err))
			return
		}

		q.StatusCode = resp.StatusCode
		q.Body = body
		if resp.StatusCode >= http.StatusBadRequest {
			done(fmt.Errorf("%w: %s", ErrStatus, resp.Status))
			return
		}
		done(nil)
	}()
}

func (q *Query) Cancel() {
	if q.cancel != nil {
		q.cancel()
	}
}

// Get declares a task fetching url.
func Get(url string, opts ...tasking.TaskOption[*Query]) tasking.Item {
	return tasking.NewTask(func() *Query {
		return &Query{URL: url}
	}, opts...)
}

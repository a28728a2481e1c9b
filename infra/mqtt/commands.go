package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/smartcharge/infra/logger"
)

// Response is the reply to a remote user command.
type Response struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Request is a user command received from the broker. Respond must be called
// exactly once by whoever executes it.
type Request struct {
	ID      string
	Line    string
	respond func(ctx context.Context, r Response) error
}

// Respond publishes the outcome of the command.
func (r Request) Respond(ctx context.Context, reply string, err error) error {
	resp := Response{ID: r.ID, OK: err == nil, Reply: reply}
	if err != nil {
		resp.Error = err.Error()
	}
	if r.respond == nil {
		return nil
	}
	return r.respond(ctx, resp)
}

// SubmitFunc hands a request to the executor. It may block until the request
// is queued.
type SubmitFunc func(ctx context.Context, req Request) error

// CommandServer receives user commands on the broker and forwards them to the
// service loop.
type CommandServer struct {
	conn   Conn
	topics Topics
	submit SubmitFunc
	log    logger.Logger
	ctx    context.Context
}

// NewCommandServer creates a server forwarding requests to submit.
func NewCommandServer(conn Conn, topics Topics, submit SubmitFunc) *CommandServer {
	return &CommandServer{conn: conn, topics: topics, submit: submit, log: logger.New("command-server")}
}

// Start subscribes to the command topic. Requests are submitted with ctx, so
// cancelling it rejects further commands.
func (s *CommandServer) Start(ctx context.Context) error {
	s.ctx = ctx
	return s.conn.Subscribe(s.topics.UserCommand("+"), s.onCommand)
}

// Stop removes the subscription.
func (s *CommandServer) Stop() error {
	return s.conn.Unsubscribe(s.topics.UserCommand("+"))
}

func (s *CommandServer) onCommand(topic string, payload []byte) {
	id := LastSegment(topic)
	req := Request{
		ID:   id,
		Line: strings.TrimSpace(string(payload)),
		respond: func(ctx context.Context, r Response) error {
			b, err := json.Marshal(r)
			if err != nil {
				return err
			}
			return s.conn.Publish(ctx, s.topics.UserResponse(r.ID), false, b)
		},
	}
	s.log.Infof("command %s: %q", id, req.Line)
	if err := s.submit(s.ctx, req); err != nil {
		s.log.Errorf("command %s rejected: %v", id, err)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rerr := req.Respond(ctx, "", fmt.Errorf("service unavailable: %w", err)); rerr != nil {
			s.log.Errorf("respond %s: %v", id, rerr)
		}
	}
}

// CommandClient sends user commands to a running service and waits for the
// reply.
type CommandClient struct {
	conn    Conn
	topics  Topics
	timeout time.Duration
}

// NewCommandClient returns a client waiting at most timeout for each reply.
func NewCommandClient(conn Conn, topics Topics, timeout time.Duration) *CommandClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommandClient{conn: conn, topics: topics, timeout: timeout}
}

// Send publishes line and blocks until the service replies, the timeout
// expires or ctx is done. A reply reporting a failure is returned as an error
// together with the response.
func (c *CommandClient) Send(ctx context.Context, line string) (Response, error) {
	id := uuid.NewString()
	ch := make(chan Response, 1)
	respTopic := c.topics.UserResponse(id)
	err := c.conn.Subscribe(respTopic, func(_ string, payload []byte) {
		var r Response
		if err := json.Unmarshal(payload, &r); err != nil {
			r = Response{ID: id, Error: fmt.Sprintf("decode response: %v", err)}
		}
		select {
		case ch <- r:
		default:
		}
	})
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = c.conn.Unsubscribe(respTopic) }()

	if err := c.conn.Publish(ctx, c.topics.UserCommand(id), false, []byte(line)); err != nil {
		return Response{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if !r.OK {
			return r, errors.New(r.Error)
		}
		return r, nil
	case <-timer.C:
		return Response{}, fmt.Errorf("%w: %s", ErrResponseTimeout, line)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

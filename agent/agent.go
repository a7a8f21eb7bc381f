// Package agent wires the engine, the event loop and the registries behind one
// method router and serves it over a connection.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"memagent/config"
	"memagent/eventloop"
	"memagent/freeze"
	"memagent/interceptor"
	"memagent/observer"
	"memagent/process"
	"memagent/rpc"
	"memagent/scan"
	"memagent/watch"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type Agent struct {
	engine process.Engine
	loop   *eventloop.Loop
	router *rpc.Router
	sink   rpc.Sink
	cfg    config.Config

	Freeze      *freeze.Registry
	Watch       *watch.Registry
	Interceptor *interceptor.Registry
	Observer    *observer.Registry
	Scan        *scan.Controller

	log *logger.Logger
}

// New builds an agent. Registries are owned by the agent and only touched on loop.
func New(engine process.Engine, loop *eventloop.Loop, sink rpc.Sink, cfg config.Config) *Agent {
	a := &Agent{
		engine:      engine,
		loop:        loop,
		router:      rpc.NewRouter(),
		sink:        sink,
		cfg:         cfg,
		Freeze:      freeze.New(loop, engine, sink),
		Watch:       watch.New(loop, engine, sink),
		Interceptor: interceptor.New(engine, sink),
		Observer:    observer.New(engine, sink),
		Scan:        scan.New(loop, engine, sink),
		log:         logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "agent")),
	}
	a.Freeze.SetDefaultInterval(cfg.FreezeInterval())
	a.Watch.SetDefaultInterval(cfg.WatchInterval())
	a.Scan.SetDefaultLimit(cfg.ScanLimit)

	a.Freeze.Register(a.router)
	a.Watch.Register(a.router)
	a.Interceptor.Register(a.router)
	a.Observer.Register(a.router)
	a.Scan.Register(a.router)
	a.registerCapabilities()
	return a
}

func (a *Agent) Router() *rpc.Router {
	return a.router
}

// Dispatch queues req on the loop. reply runs once, on the loop or on
// whichever goroutine settles a deferred result.
func (a *Agent) Dispatch(req rpc.Request, reply func(rpc.Response)) bool {
	return a.loop.Post(func() { a.router.Dispatch(req, reply) })
}

// Call dispatches method with params and waits for the response, including
// deferred ones. It must not be called from the loop.
func (a *Agent) Call(ctx context.Context, method string, params any) (any, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, rpc.Validationf("params: %v", err)
		}
		raw = data
	}

	replies := make(chan rpc.Response, 1)
	if !a.Dispatch(rpc.Request{Method: method, Params: raw}, func(resp rpc.Response) { replies <- resp }) {
		return nil, eventloop.ErrClosed
	}

	select {
	case resp := <-replies:
		if resp.Result == rpc.ResultError {
			return nil, errors.New(fmt.Sprint(resp.Returns))
		}
		return resp.Returns, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.loop.Done():
		return nil, eventloop.ErrClosed
	}
}

// Serve reads requests from conn until it reaches EOF or ctx is done.
// Malformed lines are logged and skipped.
func (a *Agent) Serve(ctx context.Context, conn *rpc.Conn) error {
	for ctx.Err() == nil {
		req, err := conn.ReadRequest()
		if errors.Is(err, rpc.ErrMalformed) {
			a.log.Warn("skipping request: ", err)
			continue
		}
		if errors.Is(err, io.EOF) {
			a.log.Infoln("input closed")
			return nil
		}
		if err != nil {
			return err
		}

		ok := a.Dispatch(req, func(resp rpc.Response) {
			if err := conn.WriteResponse(resp); err != nil {
				a.log.Warn("failed to write response ", resp.ID, ": ", err)
			}
		})
		if !ok {
			return eventloop.ErrClosed
		}
	}
	return nil
}

// Shutdown stops every timer, hook, observer and scan the agent owns.
func (a *Agent) Shutdown() error {
	return a.loop.Do(func() {
		a.Scan.Abort("")
		a.Freeze.Clear()
		a.Watch.Clear()
		if _, err := a.Interceptor.DetachAll(); err != nil {
			a.log.Warn("detach hooks: ", err)
		}
		a.Observer.DetachAll()
		a.log.Infoln("agent shut down")
	})
}

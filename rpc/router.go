package rpc

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

// Handler serves one method. It returns a JSON-encodable value, a *Deferred,
// or an error whose message becomes the error response.
type Handler func(params json.RawMessage) (any, error)

// Router maps method names to handlers. It applies no timeout and no retry.
type Router struct {
	methods map[string]Handler
	log     *logger.Logger
}

func NewRouter() *Router {
	return &Router{
		methods: make(map[string]Handler),
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "router")),
	}
}

// Handle registers h for method. Registering a method twice is a programming error.
func (r *Router) Handle(method string, h Handler) {
	if _, exists := r.methods[method]; exists {
		panic(fmt.Sprintf("rpc: method %q registered twice", method))
	}
	r.methods[method] = h
}

// Methods lists the registered method names in sorted order.
func (r *Router) Methods() []string {
	names := lo.Keys(r.methods)
	sort.Strings(names)
	return names
}

// Invoke runs the handler for method. Panics are converted to engine failures.
func (r *Router) Invoke(method string, params json.RawMessage) (result any, err error) {
	h, ok := r.methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", method)
	}

	defer func() {
		if x := recover(); x != nil {
			r.log.Warn("handler ", method, " panicked: ", x, "\n", string(debug.Stack()))
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrEngine, method, x)
		}
	}()
	return h(params)
}

// Dispatch invokes the request's handler and calls reply exactly once with
// its response, immediately or when a returned Deferred settles.
func (r *Router) Dispatch(req Request, reply func(Response)) {
	result, err := r.Invoke(req.Method, req.Params)
	if err != nil {
		r.log.Debugln("method", req.Method, "failed:", err)
		reply(errorResponse(req.ID, err))
		return
	}

	if d, ok := result.(*Deferred); ok {
		d.Then(func(v any, err error) {
			if err != nil {
				reply(errorResponse(req.ID, err))
				return
			}
			reply(okResponse(req.ID, v))
		})
		return
	}

	reply(okResponse(req.ID, result))
}

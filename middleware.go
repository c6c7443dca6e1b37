package relaymq

import "context"

// Next is invoked by a Middleware to continue the chain. Passing a
// non-nil message overrides the message downstream steps observe. A
// middleware that returns without calling next short-circuits the
// chain: the handler is never invoked and the composed function returns
// whatever that middleware returned, per spec.md §4.7.
type Next func(ctx context.Context, message interface{}) (interface{}, error)

// Middleware wraps a step of request processing shared by Publisher,
// RpcServer and Subscriber. It must call next to continue the chain;
// omitting the call drops the request silently.
type Middleware func(ctx context.Context, message interface{}, next Next) (interface{}, error)

// Handler is the terminal function of a middleware chain.
type Handler func(ctx context.Context, message interface{}) (interface{}, error)

// compose builds a single callable from a list of middleware ending in
// a handler. Execution order is lexical: pre-next work runs
// left-to-right, post-next work runs right-to-left, matching spec.md
// §4.7's invariants.
func compose(mws []Middleware, handler Handler) Next {
	if handler == nil {
		return func(context.Context, interface{}) (interface{}, error) {
			return nil, NewError(CodeConfigurationErr, "compose requires a terminal handler")
		}
	}
	next := Next(func(ctx context.Context, message interface{}) (interface{}, error) {
		return handler(ctx, message)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		prevNext := next
		next = func(ctx context.Context, message interface{}) (interface{}, error) {
			return mw(ctx, message, prevNext)
		}
	}
	return next
}

// Compose exposes the middleware chain builder publicly so callers can
// build custom handler pipelines outside of Publisher/RpcServer/
// Subscriber, e.g. for testing.
func Compose(mws []Middleware, handler Handler) Next {
	return compose(mws, handler)
}

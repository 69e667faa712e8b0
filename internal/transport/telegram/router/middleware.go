package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "pricebot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// slowHandler promotes a successful handler log line from debug to info.
const slowHandler = 750 * time.Millisecond

// requestFields describes what the user sent: command arguments for
// messages, the payload for inline buttons.
func requestFields(req *Request) []logx.Field {
	fields := []logx.Field{logx.Bool("admin", req.IsAdmin)}
	switch {
	case req.Update.Callback != nil:
		fields = append(fields, logx.String("payload", req.Payload))
	case len(req.Args) > 0:
		fields = append(fields, logx.Int("args", len(req.Args)))
	}
	return fields
}

// MWRequestLog logs one line per handled command or button press. The
// request logger already carries rid, chat_id, from_id and cmd.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			fields := append(requestFields(req), logx.Duration("took", took))
			switch {
			case err != nil:
				logger.Warn("handler failed", append(fields, logx.Err(err))...)
			case took >= slowHandler:
				logger.Info("handler slow", fields...)
			default:
				logger.Debug("handled", fields...)
			}
			return err
		}
	}
}

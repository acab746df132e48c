// Package logctx enriches slog records with per-request data carried in the
// context, so every line logged while serving a request is attributable
// without threading fields through call sites.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and stamps request attributes from the
// context onto each record.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("path", rd.Path),
			slog.String("remote_addr", rd.RemoteAddr),
		))
	}
	if td, ok := ctx.Value(telecomDataKey{}).(*TelecomData); ok {
		r.AddAttrs(slog.Group("telecom",
			slog.String("mcc", td.MCC),
			slog.String("sn", td.SN),
		))
	}
	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one in-flight HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
}

// WithRequestData attaches request identification to the context.
func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type telecomDataKey struct{}

// TelecomData carries the telecom identifier a request is operating on.
type TelecomData struct {
	MCC string
	SN  string
}

// WithTelecomData attaches the request's telecom identifier to the context.
func WithTelecomData(ctx context.Context, data *TelecomData) context.Context {
	return context.WithValue(ctx, telecomDataKey{}, data)
}

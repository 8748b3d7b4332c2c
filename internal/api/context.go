package api

import (
	"context"

	"github.com/org/servercatalog/pkg/models"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyState     contextKey = "state"
)

// requestState is attached once per request by requestIDMiddleware and
// filled in by later stages. Outer middleware (recovery, auth monitoring)
// read it after the handler returns.
type requestState struct {
	principal *models.Principal
	body      []byte
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func withState(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyState, &requestState{})
}

func stateFromCtx(ctx context.Context) *requestState {
	st, _ := ctx.Value(ctxKeyState).(*requestState)
	if st == nil {
		return &requestState{}
	}
	return st
}

func withPrincipal(ctx context.Context, p *models.Principal) context.Context {
	st, ok := ctx.Value(ctxKeyState).(*requestState)
	if !ok {
		st = &requestState{}
		ctx = context.WithValue(ctx, ctxKeyState, st)
	}
	st.principal = p
	return ctx
}

func principalFromCtx(ctx context.Context) *models.Principal {
	return stateFromCtx(ctx).principal
}

func rawBodyFromCtx(ctx context.Context) []byte {
	return stateFromCtx(ctx).body
}

// Package control maps request/reply messages onto engine operations.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-curator/internal/bus"
	"github.com/tendant/simple-curator/internal/engine"
	"github.com/tendant/simple-curator/internal/jobs"
	"github.com/tendant/simple-curator/pkg/schema"
)

// DefaultLimit applies when a submit request leaves limit unset.
const DefaultLimit = 20

const (
	OpSubmit = "submit"
	OpCancel = "cancel"
	OpGet    = "get"
	OpList   = "list"
	OpDelete = "delete"
	OpClear  = "clear"
	OpImages = "images"
)

// Engine is the set of job operations exposed remotely.
type Engine interface {
	Submit(ctx context.Context, query string, limit int, outBase string) (string, error)
	Cancel(id string) error
	Get(ctx context.Context, id string) (jobs.Job, error)
	List(ctx context.Context, page, perPage int) (engine.Page, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Images(id string) ([]string, error)
}

var _ Engine = (*engine.Engine)(nil)

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(e Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, logger: logger}
}

// Serve answers <prefix>.<op> requests until the subscription is drained.
func (h *Handler) Serve(c *bus.Client, prefix, queue string) (*nats.Subscription, error) {
	return c.HandleJSON(prefix+".*", queue, func(ctx context.Context, subject string, data []byte) any {
		return h.Handle(ctx, strings.TrimPrefix(subject, prefix+"."), data)
	})
}

// Handle runs one operation. It always returns a reply; panics become
// internal errors.
func (h *Handler) Handle(ctx context.Context, op string, data []byte) (reply schema.Reply) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("control handler panicked", "op", op, "panic", r)
			reply = schema.Reply{Error: "internal error", Code: schema.ErrorCodeInternal}
		}
	}()

	out, err := h.dispatch(ctx, op, data)
	if err != nil {
		return h.failure(op, err)
	}
	return schema.Reply{Data: out}
}

func (h *Handler) dispatch(ctx context.Context, op string, data []byte) (any, error) {
	switch op {
	case OpSubmit:
		var req schema.SubmitRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		limit := DefaultLimit
		if req.Limit != nil {
			limit = *req.Limit
		}
		id, err := h.engine.Submit(ctx, req.Query, limit, req.OutDir)
		if err != nil {
			return nil, err
		}
		return schema.SubmitResponse{JobID: id}, nil

	case OpCancel:
		id, err := jobID(data)
		if err != nil {
			return nil, err
		}
		if err := h.engine.Cancel(id); err != nil {
			return nil, err
		}
		return schema.AckResponse{OK: true, Message: "cancel requested"}, nil

	case OpGet:
		id, err := jobID(data)
		if err != nil {
			return nil, err
		}
		j, err := h.engine.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return j.View(), nil

	case OpList:
		var req schema.ListRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		page, err := h.engine.List(ctx, req.Page, req.PerPage)
		if err != nil {
			return nil, err
		}
		resp := schema.ListResponse{
			Jobs:    make([]schema.JobView, 0, len(page.Jobs)),
			Total:   page.Total,
			Page:    page.Page,
			PerPage: page.PerPage,
		}
		for _, j := range page.Jobs {
			resp.Jobs = append(resp.Jobs, j.View())
		}
		return resp, nil

	case OpDelete:
		id, err := jobID(data)
		if err != nil {
			return nil, err
		}
		if err := h.engine.Delete(ctx, id); err != nil {
			return nil, err
		}
		return schema.AckResponse{OK: true}, nil

	case OpClear:
		if err := h.engine.Clear(ctx); err != nil {
			return nil, err
		}
		return schema.AckResponse{OK: true}, nil

	case OpImages:
		id, err := jobID(data)
		if err != nil {
			return nil, err
		}
		j, err := h.engine.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		files, err := h.engine.Images(id)
		if err != nil {
			return nil, err
		}
		return schema.ImagesResponse{JobID: id, OutDir: j.OutDir, Files: files}, nil
	}
	return nil, requestError{fmt.Sprintf("unknown operation %q", op)}
}

// requestError is a malformed or unsupported request.
type requestError struct{ msg string }

func (e requestError) Error() string { return e.msg }

func decode(data []byte, v any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return requestError{"invalid request body: " + err.Error()}
	}
	return nil
}

func jobID(data []byte) (string, error) {
	var req schema.JobRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		return "", requestError{"job_id is required"}
	}
	return id, nil
}

func (h *Handler) failure(op string, err error) schema.Reply {
	var verr engine.ValidationError
	var rerr requestError
	switch {
	case errors.As(err, &verr), errors.As(err, &rerr), errors.Is(err, engine.ErrInvalidFilename):
		return schema.Reply{Error: err.Error(), Code: schema.ErrorCodeInvalid}
	case errors.Is(err, engine.ErrNotFound):
		return schema.Reply{Error: err.Error(), Code: schema.ErrorCodeNotFound}
	case errors.Is(err, engine.ErrStoreUnavailable), errors.Is(err, engine.ErrClosed):
		h.logger.Warn("control request unavailable", "op", op, "err", err)
		return schema.Reply{Error: err.Error(), Code: schema.ErrorCodeUnavailable}
	}
	h.logger.Error("control request failed", "op", op, "err", err)
	return schema.Reply{Error: "internal error", Code: schema.ErrorCodeInternal}
}

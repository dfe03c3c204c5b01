package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-curator/internal/engine"
	"github.com/tendant/simple-curator/internal/jobs"
	"github.com/tendant/simple-curator/pkg/schema"
)

type submission struct {
	Query  string
	Limit  int
	OutDir string
}

type fakeEngine struct {
	submitted []submission
	cancelled []string
	jobs      map[string]jobs.Job
	files     []string
	err       error
	panicOn   string
}

func (f *fakeEngine) Submit(_ context.Context, query string, limit int, outBase string) (string, error) {
	if f.panicOn == OpSubmit {
		panic("nil map")
	}
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, submission{Query: query, Limit: limit, OutDir: outBase})
	if limit < 1 || limit > engine.DefaultMaxLimit {
		return "", engine.ValidationError{Field: "limit", Message: "limit must be between 1 and 500"}
	}
	return "ab12cd34", nil
}

func (f *fakeEngine) Cancel(id string) error {
	if _, ok := f.jobs[id]; !ok {
		return engine.ErrNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeEngine) Get(_ context.Context, id string) (jobs.Job, error) {
	if f.err != nil {
		return jobs.Job{}, f.err
	}
	j, ok := f.jobs[id]
	if !ok {
		return jobs.Job{}, engine.ErrNotFound
	}
	return j, nil
}

func (f *fakeEngine) List(_ context.Context, page, perPage int) (engine.Page, error) {
	if f.err != nil {
		return engine.Page{}, f.err
	}
	out := engine.Page{Page: page, PerPage: perPage, Total: len(f.jobs)}
	for _, j := range f.jobs {
		out.Jobs = append(out.Jobs, j)
	}
	return out, nil
}

func (f *fakeEngine) Delete(_ context.Context, id string) error {
	if _, ok := f.jobs[id]; !ok {
		return engine.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeEngine) Clear(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = map[string]jobs.Job{}
	return nil
}

func (f *fakeEngine) Images(id string) ([]string, error) {
	if _, ok := f.jobs[id]; !ok {
		return nil, engine.ErrNotFound
	}
	return f.files, nil
}

func newFake() *fakeEngine {
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	j := jobs.New("ab12cd34", "red fox", 20, "data/collected/ab12cd34", started)
	jobs.MarkDone(&j, 7, "ok", started.Add(time.Minute))
	return &fakeEngine{jobs: map[string]jobs.Job{j.ID: j}, files: []string{"img_0001.jpg"}}
}

func TestSubmitDefaultsLimit(t *testing.T) {
	f := newFake()
	h := NewHandler(f, nil)

	reply := h.Handle(context.Background(), OpSubmit, []byte(`{"query":"red fox"}`))
	require.Empty(t, reply.Error)
	assert.Equal(t, schema.SubmitResponse{JobID: "ab12cd34"}, reply.Data)
	require.Len(t, f.submitted, 1)
	assert.Equal(t, DefaultLimit, f.submitted[0].Limit)

	h.Handle(context.Background(), OpSubmit, []byte(`{"query":"cat","limit":5,"out_dir":"data/cats"}`))
	assert.Equal(t, submission{Query: "cat", Limit: 5, OutDir: "data/cats"}, f.submitted[1])
}

func TestSubmitRejectsExplicitZeroLimit(t *testing.T) {
	f := newFake()
	h := NewHandler(f, nil)

	reply := h.Handle(context.Background(), OpSubmit, []byte(`{"query":"x","limit":0}`))
	assert.Nil(t, reply.Data)
	assert.Equal(t, schema.ErrorCodeInvalid, reply.Code)
	assert.Equal(t, "limit must be between 1 and 500", reply.Error)
	require.Len(t, f.submitted, 1)
	assert.Equal(t, 0, f.submitted[0].Limit)

	reply = h.Handle(context.Background(), OpSubmit, []byte(`{"query":"x","limit":null}`))
	require.Empty(t, reply.Error)
	assert.Equal(t, DefaultLimit, f.submitted[1].Limit)
}

func TestGetReturnsPublicView(t *testing.T) {
	h := NewHandler(newFake(), nil)

	reply := h.Handle(context.Background(), OpGet, []byte(`{"job_id":"ab12cd34"}`))
	require.Empty(t, reply.Error)
	view, ok := reply.Data.(schema.JobView)
	require.True(t, ok)
	assert.Equal(t, schema.JobStatusDone, view.Status)
	require.NotNil(t, view.Count)
	assert.Equal(t, 7, *view.Count)
	assert.Equal(t, "2026-05-01T12:00:00Z", view.StartedAt)
}

func TestListAndImages(t *testing.T) {
	h := NewHandler(newFake(), nil)

	reply := h.Handle(context.Background(), OpList, []byte(`{"page":1,"per_page":10}`))
	require.Empty(t, reply.Error)
	list := reply.Data.(schema.ListResponse)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "ab12cd34", list.Jobs[0].ID)

	reply = h.Handle(context.Background(), OpImages, []byte(`{"job_id":"ab12cd34"}`))
	require.Empty(t, reply.Error)
	assert.Equal(t, schema.ImagesResponse{
		JobID:  "ab12cd34",
		OutDir: "data/collected/ab12cd34",
		Files:  []string{"img_0001.jpg"},
	}, reply.Data)
}

func TestCancelDeleteClear(t *testing.T) {
	f := newFake()
	h := NewHandler(f, nil)
	ctx := context.Background()

	reply := h.Handle(ctx, OpCancel, []byte(`{"job_id":"ab12cd34"}`))
	assert.Equal(t, schema.AckResponse{OK: true, Message: "cancel requested"}, reply.Data)
	assert.Equal(t, []string{"ab12cd34"}, f.cancelled)

	reply = h.Handle(ctx, OpDelete, []byte(`{"job_id":"ab12cd34"}`))
	assert.Equal(t, schema.AckResponse{OK: true}, reply.Data)

	reply = h.Handle(ctx, OpDelete, []byte(`{"job_id":"ab12cd34"}`))
	assert.Equal(t, schema.ErrorCodeNotFound, reply.Code)

	reply = h.Handle(ctx, OpClear, nil)
	assert.Empty(t, reply.Error)
}

func TestErrorCodes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		op   string
		body string
		code schema.ErrorCode
	}{
		{"validation", engine.ValidationError{Field: "limit", Message: "limit must be between 1 and 500"}, OpSubmit, `{"query":"x","limit":900}`, schema.ErrorCodeInvalid},
		{"store down", fmt.Errorf("%w: dial tcp", engine.ErrStoreUnavailable), OpList, `{}`, schema.ErrorCodeUnavailable},
		{"closing", engine.ErrClosed, OpSubmit, `{"query":"x"}`, schema.ErrorCodeUnavailable},
		{"unexpected", errors.New("disk on fire"), OpClear, ``, schema.ErrorCodeInternal},
		{"bad json", nil, OpSubmit, `{"query":`, schema.ErrorCodeInvalid},
		{"missing id", nil, OpGet, `{}`, schema.ErrorCodeInvalid},
		{"unknown job", nil, OpGet, `{"job_id":"nope"}`, schema.ErrorCodeNotFound},
		{"unknown op", nil, "restart", `{}`, schema.ErrorCodeInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFake()
			f.err = tc.err
			reply := NewHandler(f, nil).Handle(ctx, tc.op, []byte(tc.body))
			assert.Nil(t, reply.Data)
			assert.Equal(t, tc.code, reply.Code)
			assert.NotEmpty(t, reply.Error)
		})
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	f := newFake()
	f.err = errors.New("pq: password authentication failed")
	reply := NewHandler(f, nil).Handle(context.Background(), OpClear, nil)
	assert.Equal(t, "internal error", reply.Error)
}

func TestPanicBecomesInternalError(t *testing.T) {
	f := newFake()
	f.panicOn = OpSubmit
	reply := NewHandler(f, nil).Handle(context.Background(), OpSubmit, []byte(`{"query":"x"}`))
	assert.Equal(t, schema.ErrorCodeInternal, reply.Code)
	assert.Equal(t, "internal error", reply.Error)
}

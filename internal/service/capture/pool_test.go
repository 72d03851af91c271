package capture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []model.CaptureEvent
}

func (c *collector) sink(ev model.CaptureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) byStatus() map[model.CaptureStatus]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.CaptureStatus]int)
	for _, ev := range c.events {
		out[ev.Status]++
	}
	return out
}

type funcForwarder func(ctx context.Context, image []byte, meta Metadata) (int, error)

func (f funcForwarder) Forward(ctx context.Context, image []byte, meta Metadata) (int, error) {
	return f(ctx, image, meta)
}

func job(name string) Job {
	return Job{EventID: name, TrackID: "trk_" + name, Image: []byte("img"), Meta: Metadata{Filename: name + ".jpg", LocationID: "loc"}}
}

func waitPool(t *testing.T, p *Pool) {
	t.Helper()
	p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}

func TestPool_Statuses(t *testing.T) {
	c := &collector{}
	fw := funcForwarder(func(ctx context.Context, image []byte, meta Metadata) (int, error) {
		switch meta.Filename {
		case "ok.jpg":
			return http.StatusOK, nil
		case "skip.jpg":
			return 0, ErrNoEndpoint
		default:
			return http.StatusBadGateway, errors.New("bad gateway")
		}
	})
	p := NewPool(fw, c.sink, 2, 8, logger.Discard())

	p.Dispatch(job("ok"))
	p.Dispatch(job("skip"))
	p.Dispatch(job("bad"))
	waitPool(t, p)

	assert.Equal(t, map[model.CaptureStatus]int{
		model.CaptureForwarded: 1,
		model.CaptureSkipped:   1,
		model.CaptureFailed:    1,
	}, c.byStatus())

	for _, ev := range c.events {
		if ev.Status == model.CaptureFailed {
			assert.Equal(t, http.StatusBadGateway, ev.StatusCode)
			assert.False(t, ev.Forwarded)
			assert.Equal(t, "bad gateway", ev.Error)
		}
		if ev.Status == model.CaptureForwarded {
			assert.True(t, ev.Forwarded)
			assert.Equal(t, "loc", ev.LocationID)
		}
	}
}

func TestPool_FullQueueDrops(t *testing.T) {
	c := &collector{}
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	fw := funcForwarder(func(ctx context.Context, image []byte, meta Metadata) (int, error) {
		started <- struct{}{}
		<-release
		return http.StatusOK, nil
	})
	p := NewPool(fw, c.sink, 1, 1, logger.Discard())

	p.Dispatch(job("a"))
	<-started // worker busy with a
	p.Dispatch(job("b"))
	p.Dispatch(job("c"))

	assert.Equal(t, 1, c.byStatus()[model.CaptureDropped])

	close(release)
	waitPool(t, p)

	assert.Equal(t, 2, c.byStatus()[model.CaptureForwarded])
}

func TestPool_DispatchAfterClose(t *testing.T) {
	c := &collector{}
	p := NewPool(funcForwarder(func(ctx context.Context, image []byte, meta Metadata) (int, error) {
		return http.StatusOK, nil
	}), c.sink, 1, 1, logger.Discard())

	p.Close()
	p.Close()
	p.Dispatch(job("late"))

	assert.Equal(t, 1, c.byStatus()[model.CaptureDropped])
}

func TestHTTPForwarder_Multipart(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "loc-7", r.FormValue("location_id"))
		assert.Equal(t, "m-1", r.FormValue("model_id"))
		assert.Equal(t, "out", r.FormValue("direction"))

		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "jpeg", string(data))
			assert.Equal(t, "cap.jpg", hdr.Filename)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	fw := NewHTTPForwarder(srv.URL, time.Second)
	code, err := fw.Forward(context.Background(), []byte("jpeg"), Metadata{LocationID: "loc-7", ModelID: "m-1", Direction: "out", Filename: "cap.jpg"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPForwarder_NoRetryOnFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	code, err := NewHTTPForwarder(srv.URL, time.Second).Forward(context.Background(), []byte("jpeg"), Metadata{Filename: "x.jpg"})
	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPForwarder_NoEndpoint(t *testing.T) {
	_, err := NewHTTPForwarder("", 0).Forward(context.Background(), []byte("jpeg"), Metadata{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

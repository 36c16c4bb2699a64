package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/rfm"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/version"
)

const cacheMaxAge = "public, max-age=60"

type APIHandlers struct {
	analytics     *services.Analytics
	logger        *slog.Logger
	reloadTimeout time.Duration

	// baseCtx scopes background reloads; Shutdown cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger, reloadTimeout time.Duration) *APIHandlers {
	ctx, cancel := context.WithCancel(context.Background())
	return &APIHandlers{
		analytics:     analytics,
		logger:        logger,
		reloadTimeout: reloadTimeout,
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// Shutdown cancels background reloads and waits for them to return.
func (h *APIHandlers) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queryError maps a service error to its HTTP form. A ledger that has not
// loaded yet is unavailable, which is distinct from an empty result.
func queryError(err error) error {
	if stderrors.Is(err, services.ErrNotLoaded) {
		return errors.Unavailable(err, "Ledger is not loaded")
	}
	return errors.InternalWrap(err, "Query failed")
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Invalid filter"))
		return
	}

	data, err := h.analytics.Aggregates(filter)
	if err != nil {
		h.fail(w, r, queryError(err))
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleRFM(w http.ResponseWriter, r *http.Request) {
	var (
		data any
		err  error
	)
	if name := r.URL.Query().Get("segment"); name != "" {
		segment, ok := rfm.Lookup(name)
		if !ok {
			h.fail(w, r, errors.NotFound(fmt.Sprintf("Unknown segment %q", name)))
			return
		}
		data, err = h.analytics.CustomersInSegment(segment)
	} else {
		data, err = h.analytics.RFMTable()
	}
	if err != nil {
		h.fail(w, r, queryError(err))
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.SegmentCounts()
	if err != nil {
		h.fail(w, r, queryError(err))
		return
	}
	errors.WriteSuccess(w, data)
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.FilterOptions()
	if err != nil {
		h.fail(w, r, queryError(err))
		return
	}
	errors.WriteSuccess(w, data)
}

func (h *APIHandlers) HandleQuality(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.Quality()
	if err != nil {
		h.fail(w, r, queryError(err))
		return
	}
	errors.WriteSuccess(w, data)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version.Version,
		"reloading": h.analytics.Reloading(),
	}

	snap, err := h.analytics.Snapshot()
	if err != nil {
		health["status"] = "loading"
		errors.WriteStatus(w, http.StatusServiceUnavailable, health)
		return
	}

	health["snapshot_id"] = snap.ID
	errors.WriteSuccess(w, health)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}

// HandleReload starts a reload in the background and returns immediately.
// The previous snapshot keeps serving until the new one is ready.
func (h *APIHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())
	ctx, cancel := context.WithTimeout(observability.WithRequestID(h.baseCtx, requestID), h.reloadTimeout)

	h.wg.Add(1)
	err := h.analytics.StartReload(ctx, func(err error) {
		defer h.wg.Done()
		defer cancel()
		if err != nil {
			h.logger.ErrorContext(ctx, "reload failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		h.wg.Done()
		if stderrors.Is(err, services.ErrReloadInProgress) {
			h.fail(w, r, errors.Conflict("A reload is already in progress"))
			return
		}
		h.fail(w, r, queryError(err))
		return
	}

	errors.WriteStatus(w, http.StatusAccepted, map[string]string{
		"status": "reloading",
	})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/routing"
	"github.com/saferoads/server/internal/lib/segments"
	"github.com/saferoads/server/internal/services"
)

// maxBodyBytes bounds request bodies; route and rating payloads are tiny.
const maxBodyBytes = 1 << 20

// Handlers holds the HTTP handler set over the application services.
type Handlers struct {
	routes     *services.RoutesService
	ratings    *services.RatingsService
	store      *segments.Store
	regionName string
	logger     *zap.SugaredLogger
	startedAt  time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(routes *services.RoutesService, ratings *services.RatingsService, store *segments.Store, regionName string, logger *zap.SugaredLogger) *Handlers {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handlers{
		routes:     routes,
		ratings:    ratings,
		store:      store,
		regionName: regionName,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// CalculateRoute handles POST /api/v1/routes/calculate.
func (h *Handlers) CalculateRoute(w http.ResponseWriter, r *http.Request) {
	var req calculateRouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := h.routes.SelectBestRoute(r.Context(), services.RouteRequest{
		Start:            req.Start,
		Destination:      req.Destination,
		PrioritizeSafety: req.PrioritizeSafety,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRouteResponse(result))
}

// SubmitRating handles POST /api/v1/ratings.
func (h *Handlers) SubmitRating(w http.ResponseWriter, r *http.Request) {
	var req submitRatingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := h.ratings.SubmitRating(r.Context(), services.RatingRequest{
		SegmentID:   req.SegmentID,
		Coordinates: req.Coordinates,
		Rating:      req.Rating,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, submitRatingResponse{
		Segment: result.Segment,
		Durable: result.Durable,
	})
}

// QuerySegments handles GET /api/v1/ratings?north=&south=&east=&west=.
func (h *Handlers) QuerySegments(w http.ResponseWriter, r *http.Request) {
	bounds, err := boundsFromQuery(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_bounds", err.Error())
		return
	}

	segs, err := h.ratings.QuerySegments(bounds)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if segs == nil {
		segs = []segments.RoadSegment{}
	}
	h.writeJSON(w, http.StatusOK, querySegmentsResponse{Segments: segs, Count: len(segs)})
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Region:        h.regionName,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.store != nil {
		resp.Segments = h.store.Len()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func boundsFromQuery(r *http.Request) (geo.Bounds, error) {
	var bounds geo.Bounds
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"north", &bounds.North},
		{"south", &bounds.South},
		{"east", &bounds.East},
		{"west", &bounds.West},
	} {
		raw := r.URL.Query().Get(f.name)
		if raw == "" {
			return geo.Bounds{}, errors.New("missing query parameter " + f.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return geo.Bounds{}, errors.New("malformed query parameter " + f.name)
		}
		*f.dst = v
	}
	return bounds, nil
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		h.writeError(w, r, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}
	var ge *services.GeographicBoundsError
	if errors.As(err, &ge) {
		h.writeError(w, r, http.StatusUnprocessableEntity, "out_of_region", ge.Error())
		return
	}
	if errors.Is(err, routing.ErrNoRouteAvailable) {
		h.writeError(w, r, http.StatusServiceUnavailable, "no_route", "no route available")
		return
	}
	h.logger.Errorw("request failed", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}

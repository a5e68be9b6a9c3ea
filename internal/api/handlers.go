package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/lookup"
	"github.com/xkilldash9x/rvlookup/internal/observability"
)

const (
	// Banner is the plain-text liveness response on the root route.
	Banner = "ATC Scraper is live."
	// FailureMessage is the only detail a fatal search failure exposes.
	FailureMessage = "Scraping failed. Try again later."

	maxBodyBytes = 64 << 10
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, Banner)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(zap.String("request_id", RequestID(r.Context())))

	criteria, err := decodeCriteria(r)
	if err != nil {
		log.Debug("Rejected malformed search body.", zap.Error(err))
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	criteria = criteria.Normalize()
	if err := criteria.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	log.Debug("Search requested.", observability.Masked("last_name", criteria.LastName))

	result, err := s.retry.Do(r.Context(), log, func(ctx context.Context) (lookup.SearchResult, error) {
		return s.searcher.Search(ctx, criteria)
	})
	if err != nil {
		s.respondSearchError(w, r, log, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) respondSearchError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if errors.Is(err, lookup.ErrInvalidCriteria) {
		respondError(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	var stage string
	var serr *lookup.StageError
	if errors.As(err, &serr) {
		stage = string(serr.Stage)
	}
	if r.Context().Err() != nil {
		// The client has gone; nobody reads this body.
		log.Info("Search abandoned by client.", zap.String("stage", stage), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled", Stage: stage})
		return
	}
	log.Error("Search failed.", zap.String("stage", stage), zap.Error(err))
	respondError(w, http.StatusInternalServerError, errorBody{Error: FailureMessage, Stage: stage})
}

// decodeCriteria accepts a JSON body or a URL-encoded form.
func decodeCriteria(r *http.Request) (lookup.SearchCriteria, error) {
	var c lookup.SearchCriteria
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, err
		}
		return c, nil
	}

	if err := r.ParseForm(); err != nil {
		return c, err
	}
	c.LastName = r.PostForm.Get("lastName")
	c.Last4SSN = r.PostForm.Get("ssn")
	c.DateOfBirth = r.PostForm.Get("dob")
	return c, nil
}

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/tactimerge/internal/ingest"
	"github.com/ppiankov/tactimerge/internal/model"
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Team        string `json:"team"`
	EraRange    string `json:"era_range,omitempty"`
	Intent      string `json:"intent,omitempty"`
	Competition string `json:"competition,omitempty"`
	K           int    `json:"k,omitempty"`
}

// FixtureRequest is the body of POST /predict and POST /compare.
type FixtureRequest struct {
	TeamA       string `json:"teamA"`
	TeamB       string `json:"teamB"`
	EraRange    string `json:"era_range,omitempty"`
	Competition string `json:"competition,omitempty"`
	Fill        string `json:"fill,omitempty"` // Compare only
	K           int    `json:"k,omitempty"`
}

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	Document ingest.RawDocument `json:"document"`
	Tags     ingest.Tags        `json:"tags"`
	Update   bool               `json:"update,omitempty"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to TactiMerge API"})
}

func (s *Server) handleHealth(c echo.Context) error {
	h, err := s.svc.Health(c.Request().Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, h)
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	q, err := s.svc.Query(req.Team, req.EraRange, req.Competition, req.Intent)
	if err != nil {
		return err
	}
	a, err := s.svc.Analyze(c.Request().Context(), q, req.K)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.Summary.Eras)
}

func (s *Server) handlePredict(c echo.Context) error {
	a, b, req, err := s.fixture(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Predict(c.Request().Context(), a, b, req.K)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCompare(c echo.Context) error {
	a, b, req, err := s.fixture(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Compare(c.Request().Context(), a, b, req.K, req.Fill)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) fixture(c echo.Context) (model.Query, model.Query, FixtureRequest, error) {
	var req FixtureRequest
	if err := c.Bind(&req); err != nil {
		return model.Query{}, model.Query{}, req, err
	}
	a, err := s.svc.Query(req.TeamA, req.EraRange, req.Competition, "")
	if err != nil {
		return model.Query{}, model.Query{}, req, err
	}
	b, err := s.svc.Query(req.TeamB, req.EraRange, req.Competition, "")
	if err != nil {
		return model.Query{}, model.Query{}, req, err
	}
	return a, b, req, nil
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	res, err := s.svc.Ingest(c.Request().Context(), req.Document, req.Tags, ingest.Options{Update: req.Update})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

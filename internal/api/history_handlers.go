package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/export"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// handleHistory lists the caller's sent outreach, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// handleHistoryExport returns the history as an xlsx download
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	records, ok := s.loadHistory(w, r)
	if !ok {
		return
	}

	owner := currentSession(r).Data.UserEmail
	var buf bytes.Buffer
	if err := export.WriteHistory(&buf, records, owner); err != nil {
		s.logger.Error("Failed to build workbook", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to export history")
		return
	}

	filename := fmt.Sprintf("outreach_history_%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("Failed to write workbook", zap.Error(err))
	}
}

func (s *Server) loadHistory(w http.ResponseWriter, r *http.Request) ([]models.OutreachRecord, bool) {
	if s.history == nil {
		s.respondError(w, http.StatusNotFound, "History is not enabled")
		return nil, false
	}

	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return nil, false
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), currentSession(r).Data.UserEmail, limit)
	if err != nil {
		s.logger.Error("Failed to list history", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to load history")
		return nil, false
	}
	return records, true
}

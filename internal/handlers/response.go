package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/ledger"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// respondError maps ledger error kinds to status codes. Anything unrecognised is logged
// in full and answered with a generic message.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case ledger.IsValidation(err):
		body := gin.H{"error": err.Error()}
		var fields ledger.ValidationErrors
		if errors.As(err, &fields) {
			body["fields"] = fields
		}
		c.JSON(http.StatusBadRequest, body)
	case ledger.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case ledger.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, name string) (uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &ledger.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return uint(v), nil
}

// parseDate accepts YYYY-MM-DD or DD-MM-YYYY. An empty string gives the zero time.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		d, err = time.Parse("02-01-2006", s)
	}
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Reason: "must be YYYY-MM-DD or DD-MM-YYYY"}
	}
	return d, nil
}

func parseDatePtr(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func queryDate(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	return parseDatePtr(name, &raw)
}

type page struct {
	Page  int
	Limit int
}

func pagination(c *gin.Context) page {
	p := page{Page: 1, Limit: defaultLimit}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		p.Limit = min(v, maxLimit)
	}
	return p
}

// respondPage writes one page of items along with the paging metadata.
func respondPage[T any](c *gin.Context, p page, items []T) {
	if items == nil {
		items = []T{}
	}
	total := len(items)
	start := total
	if p.Page-1 <= total/p.Limit {
		start = min((p.Page-1)*p.Limit, total)
	}
	end := min(start+p.Limit, total)
	c.JSON(http.StatusOK, gin.H{
		"data":  items[start:end],
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
	})
}

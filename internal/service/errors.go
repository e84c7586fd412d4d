package service

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	ErrStreamNotFound    = errors.New("stream not found")
	ErrStreamNotLive     = errors.New("stream is not live")
	ErrUnauthorized      = errors.New("authentication required")
	ErrForbidden         = errors.New("only the broadcaster can do this")
	ErrInvalidTransition = errors.New("invalid stream state transition")
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrChunkStale        = errors.New("stale chunk")
	ErrChunkExpired      = errors.New("chunk expired")
	ErrChunkWrite        = errors.New("failed to store chunk")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// RateLimitError reports how long the caller has to wait before trying again.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.Wait)
}

// WaitSeconds rounds the wait up to whole seconds.
func (e *RateLimitError) WaitSeconds() int {
	return int(math.Ceil(e.Wait.Seconds()))
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	}
}

// bindingError turns a gin binding failure into a ValidationError.
func bindingError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidField("body", "malformed request body")
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// respondError maps service errors onto HTTP responses.
func respondError(c *gin.Context, op string, err error) {
	var (
		verr *ValidationError
		rerr *RateLimitError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &rerr):
		wait := rerr.WaitSeconds()
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Too many messages. Please wait %d seconds.", wait),
			"wait":    wait,
		})
	case errors.Is(err, ErrStreamNotFound), errors.Is(err, ErrStreamNotLive),
		errors.Is(err, ErrChunkNotFound), errors.Is(err, ErrChunkStale), errors.Is(err, ErrChunkExpired):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrChunkWrite):
		log.Printf("❌ %s stream=%s: %v", op, c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrChunkWrite.Error()})
	default:
		log.Printf("❌ %s stream=%s: %v", op, c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

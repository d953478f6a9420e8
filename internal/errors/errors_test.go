package errors

import (
	"bytes"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/gdfit/internal/logging"
)

func TestErrorString(t *testing.T) {
	err := New("load failed").WithOperation("read_column").WithComponent("dataset")
	assert.Equal(t, "load failed: operation=read_column, component=dataset", err.Error())
	assert.NotEmpty(t, err.StackTrace())

	wrapped := Wrap(io.ErrUnexpectedEOF, "short file")
	assert.Equal(t, "short file: unexpected EOF", wrapped.Error())
}

func TestWrapKeepsChain(t *testing.T) {
	inner := Wrapf(io.EOF, "record %d", 3).WithComponent("dataset")
	outer := Wrap(inner, "x.csv")

	assert.True(t, Is(outer, io.EOF))
	assert.Same(t, inner, Unwrap(outer))
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.Equal(t, "x.csv: record 3, component=dataset: EOF", outer.Error())

	var target *Error
	require.True(t, As(outer, &target))
	assert.Same(t, outer, target)
	assert.False(t, As(nil, &target))

	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
	assert.False(t, Is(Errorf("a %d", 1), stderrors.New("a 1")))
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "Recovered from panic")
	assert.Contains(t, buf.String(), "boom")
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	h := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Empty(t, buf.String())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Contains(t, buf.String(), "Request error")
}

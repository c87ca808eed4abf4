package lms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll(t *testing.T) {
	var got enrollmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/enrollment/v1/enrollment", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Edx-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "key", HTTPClient: &http.Client{Timeout: time.Second}}
	require.NoError(t, c.Enroll(context.Background(), "course-v1:s1", "anna", "verified"))
	assert.Equal(t, enrollmentRequest{User: "anna", Mode: "verified", IsActive: true, CourseDetails: courseDetails{CourseID: "course-v1:s1"}}, got)
}

func TestEnroll_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"unknown course"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: &http.Client{Timeout: time.Second}}
	err := c.Enroll(context.Background(), "course-v1:x", "anna", "verified")

	var enrollErr *EnrollmentError
	require.True(t, errors.As(err, &enrollErr))
	assert.Equal(t, http.StatusBadRequest, enrollErr.Status)
	assert.Contains(t, enrollErr.Body, "unknown course")
}

func TestEnroll_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: &http.Client{Timeout: 50 * time.Millisecond}}
	assert.Error(t, c.Enroll(context.Background(), "course-v1:x", "anna", "verified"))
}

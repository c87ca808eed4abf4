// Package lms pushes enrollments to the external learning system.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
)

// EnrollmentError is a rejected enrollment push.
type EnrollmentError struct {
	Status int
	Body   string
}

func (e *EnrollmentError) Error() string {
	return fmt.Sprintf("lms enrollment failed: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

type courseDetails struct {
	CourseID string `json:"course_id"`
}

type enrollmentRequest struct {
	User          string        `json:"user"`
	Mode          string        `json:"mode"`
	IsActive      bool          `json:"is_active"`
	CourseDetails courseDetails `json:"course_details"`
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("LMS_API_URL", "")), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("LMS_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("LMS_TIMEOUT", 10*time.Second),
		},
	}
}

// Enroll activates username in the course run with the given mode.
func (c *Client) Enroll(ctx context.Context, courseRef, username, mode string) error {
	if c.BaseURL == "" {
		return errors.New("LMS_API_URL is not configured")
	}
	if strings.TrimSpace(courseRef) == "" || strings.TrimSpace(username) == "" {
		return errors.New("course and username are required")
	}

	payload, err := json.Marshal(enrollmentRequest{
		User:          username,
		Mode:          mode,
		IsActive:      true,
		CourseDetails: courseDetails{CourseID: courseRef},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/enrollment/v1/enrollment", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Edx-Api-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &EnrollmentError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

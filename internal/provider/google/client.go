// Package google adapts the Calendar and YouTube Data APIs to the service layer.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Scopes are requested during consent and cover every call this package makes.
var Scopes = []string{
	calendar.CalendarScope,
	youtube.YoutubeScope,
}

// Services bundles the API clients built from one authorised HTTP client.
type Services struct {
	Calendar *calendar.Service
	YouTube  *youtube.Service
}

// NewServices builds both API clients. Extra options are appended, which lets
// tests point the clients at an httptest server.
func NewServices(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Services, error) {
	base := append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)

	cal, err := calendar.NewService(ctx, base...)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	yt, err := youtube.NewService(ctx, base...)
	if err != nil {
		return nil, fmt.Errorf("create youtube client: %w", err)
	}
	return &Services{Calendar: cal, YouTube: yt}, nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

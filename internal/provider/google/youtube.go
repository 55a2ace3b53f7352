package google

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

const youtubePageSize = 50

var broadcastParts = []string{"snippet", "contentDetails", "status"}

// YouTube manages the channel's live broadcasts and resolves its ingest streams.
type YouTube struct {
	svc    *youtube.Service
	logger *zap.Logger
}

// NewYouTube constructs the broadcast store.
func NewYouTube(svc *youtube.Service, logger *zap.Logger) *YouTube {
	return &YouTube{svc: svc, logger: loggerOrNop(logger)}
}

// ListBroadcasts returns every broadcast of the authorised channel, any lifecycle.
func (y *YouTube) ListBroadcasts(ctx context.Context) ([]models.Broadcast, error) {
	var (
		broadcasts []models.Broadcast
		pageToken  string
	)
	for {
		call := y.svc.LiveBroadcasts.List(broadcastParts).
			BroadcastType("all").
			Mine(true).
			MaxResults(youtubePageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list live broadcasts: %w", err)
		}
		for _, item := range page.Items {
			broadcast, err := broadcastFrom(item)
			if err != nil {
				return nil, err
			}
			broadcasts = append(broadcasts, broadcast)
		}
		if page.NextPageToken == "" {
			return broadcasts, nil
		}
		pageToken = page.NextPageToken
	}
}

func broadcastFrom(item *youtube.LiveBroadcast) (models.Broadcast, error) {
	broadcast := models.Broadcast{ID: item.Id}
	if item.Status != nil {
		broadcast.Lifecycle = models.ParseLifecycleState(item.Status.LifeCycleStatus)
	}
	if item.Snippet == nil {
		return broadcast, nil
	}
	broadcast.Title = item.Snippet.Title
	start, err := parseTime(item.Snippet.ScheduledStartTime)
	if err != nil {
		return models.Broadcast{}, fmt.Errorf("parse scheduled start of %s: %w", item.Id, err)
	}
	end, err := parseTime(item.Snippet.ScheduledEndTime)
	if err != nil {
		return models.Broadcast{}, fmt.Errorf("parse scheduled end of %s: %w", item.Id, err)
	}
	broadcast.ScheduledStart, broadcast.ScheduledEnd = start, end
	return broadcast, nil
}

// CreateBroadcast schedules a broadcast with auto start and stop enabled.
func (y *YouTube) CreateBroadcast(ctx context.Context, title string, start, end time.Time, privacy models.PrivacyStatus) (string, error) {
	body := &youtube.LiveBroadcast{
		Snippet: &youtube.LiveBroadcastSnippet{
			Title:              title,
			ScheduledStartTime: formatTime(start),
			ScheduledEndTime:   formatTime(end),
		},
		Status: &youtube.LiveBroadcastStatus{
			PrivacyStatus:           string(privacy),
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
		ContentDetails: &youtube.LiveBroadcastContentDetails{
			EnableAutoStart: true,
			EnableAutoStop:  true,
		},
	}
	created, err := y.svc.LiveBroadcasts.Insert(broadcastParts, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert live broadcast %q: %w", title, err)
	}
	y.logger.Debug("live broadcast inserted", zap.String("broadcast_id", created.Id), zap.String("title", title))
	return created.Id, nil
}

// DeleteBroadcast removes a broadcast by id.
func (y *YouTube) DeleteBroadcast(ctx context.Context, broadcastID string) error {
	if err := y.svc.LiveBroadcasts.Delete(broadcastID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete live broadcast %s: %w", broadcastID, err)
	}
	return nil
}

// BindBroadcast attaches the broadcast to the ingest stream and returns the bound id.
func (y *YouTube) BindBroadcast(ctx context.Context, broadcastID, streamID string) (string, error) {
	bound, err := y.svc.LiveBroadcasts.Bind(broadcastID, []string{"id", "contentDetails"}).
		StreamId(streamID).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("bind live broadcast %s to stream %s: %w", broadcastID, streamID, err)
	}
	return bound.Id, nil
}

// ResolveStreamID returns the id of the first stream whose title matches exactly,
// or an empty id when none does.
func (y *YouTube) ResolveStreamID(ctx context.Context, title string) (string, error) {
	pageToken := ""
	for {
		call := y.svc.LiveStreams.List([]string{"id", "snippet"}).
			Mine(true).
			MaxResults(youtubePageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("list live streams: %w", err)
		}
		for _, stream := range page.Items {
			if stream.Snippet != nil && stream.Snippet.Title == title {
				return stream.Id, nil
			}
		}
		if page.NextPageToken == "" {
			y.logger.Warn("no live stream with title", zap.String("title", title), zap.Int("checked", len(page.Items)))
			return "", nil
		}
		pageToken = page.NextPageToken
	}
}

package domain

import "time"

type OnlineStream struct {
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsFavorite   bool      `json:"is_favorite"`
	IsLive       bool      `json:"is_live"`
	LastOnline   time.Time `json:"last_online"`
	StreamCount  int       `json:"stream_count"`
}

type OfflineChannel struct {
	UserID          string     `json:"user_id"`
	UserLogin       string     `json:"user_login"`
	UserName        string     `json:"user_name"`
	ProfileImageURL string     `json:"profile_image_url"`
	IsFavorite      bool       `json:"is_favorite"`
	IsLive          bool       `json:"is_live"`
	LastOnline      *time.Time `json:"last_online"`
	StreamCount     int        `json:"stream_count"`
}

type FollowedStreams struct {
	Online  []OnlineStream   `json:"online"`
	Offline []OfflineChannel `json:"offline"`
}

func EmptyFollowedStreams() FollowedStreams {
	return FollowedStreams{Online: []OnlineStream{}, Offline: []OfflineChannel{}}
}

type HistoryEntry struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	GameName        *string    `json:"game_name"`
	DurationMinutes *int       `json:"duration_minutes"`
}

func HistoryEntryFromSession(s StreamSession) HistoryEntry {
	return HistoryEntry{
		ID:              s.ID.String(),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		GameName:        s.GameName,
		DurationMinutes: s.DurationMinutes(),
	}
}

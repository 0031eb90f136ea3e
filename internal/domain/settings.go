package domain

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	SettingPollingInterval      = "polling_interval"
	SettingNotificationsEnabled = "notifications_enabled"

	DefaultPollingInterval      = "30000"
	DefaultNotificationsEnabled = "true"

	MinPollInterval      = 5 * time.Second
	FallbackPollInterval = 60 * time.Second
)

type Settings struct {
	PollingInterval      string `json:"polling_interval"`
	NotificationsEnabled string `json:"notifications_enabled"`
}

func DefaultSettings() Settings {
	return Settings{
		PollingInterval:      DefaultPollingInterval,
		NotificationsEnabled: DefaultNotificationsEnabled,
	}
}

// SettingsPatch carries the subset of settings to change. Nil fields are
// left untouched.
type SettingsPatch struct {
	PollingInterval      *string `json:"polling_interval,omitempty"`
	NotificationsEnabled *string `json:"notifications_enabled,omitempty"`
}

// Entries returns the patch as key/value pairs in a stable order.
func (p SettingsPatch) Entries() [][2]string {
	var entries [][2]string
	if p.PollingInterval != nil {
		entries = append(entries, [2]string{SettingPollingInterval, *p.PollingInterval})
	}
	if p.NotificationsEnabled != nil {
		entries = append(entries, [2]string{SettingNotificationsEnabled, *p.NotificationsEnabled})
	}
	return entries
}

// SettingsFromRows applies recognized keys on top of the defaults.
func SettingsFromRows(rows map[string]string) Settings {
	s := DefaultSettings()
	for key, value := range rows {
		switch key {
		case SettingPollingInterval:
			s.PollingInterval = value
		case SettingNotificationsEnabled:
			s.NotificationsEnabled = value
		}
	}
	return s
}

// PollInterval is the poller delay: polling_interval in milliseconds, falling
// back to 60s when unparsable or zero, never below 5s.
func (s Settings) PollInterval() time.Duration {
	interval := FallbackPollInterval
	ms, err := strconv.ParseFloat(strings.TrimSpace(s.PollingInterval), 64)
	if err == nil && ms != 0 && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
		interval = time.Duration(ms * float64(time.Millisecond))
	}
	return max(MinPollInterval, interval)
}

func (s Settings) NotificationsOn() bool {
	return s.NotificationsEnabled == "true"
}

type SettingsRepository interface {
	All(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, key, value string) error
}

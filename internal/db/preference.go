package db

import (
	"context"
	"errors"
	"time"
)

// ShouldSendNotification evaluates the stored per-user preference for one
// notification type on one channel. Absence of a preference row defaults to
// "send".
func (store *SQLStore) ShouldSendNotification(ctx context.Context, userID string, notificationType NotificationType, channel DeliveryChannel) (bool, error) {
	const query = `
		SELECT enabled
		FROM notification_preferences
		WHERE user_id = $1 AND type = $2 AND channel = $3`

	var enabled bool
	err := store.connPool.QueryRow(ctx, query, userID, notificationType, channel).Scan(&enabled)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}

	return enabled, nil
}

// IsWithinQuietHours reports whether the current wall-clock time in the
// user's configured zone falls inside their quiet-hours window. Users
// without a configured window are never in quiet hours.
func (store *SQLStore) IsWithinQuietHours(ctx context.Context, userID string) (bool, error) {
	user, err := store.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}

	if user.QuietHoursStart == nil || user.QuietHoursEnd == nil {
		return false, nil
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return inQuietWindow(time.Now().In(loc), *user.QuietHoursStart, *user.QuietHoursEnd), nil
}

// inQuietWindow checks a clock time against a window given as "HH:MM"
// strings. Windows crossing midnight (e.g. 22:00–07:00) are supported.
func inQuietWindow(now time.Time, start, end string) bool {
	startMin, err := parseClockMinutes(start)
	if err != nil {
		return false
	}
	endMin, err := parseClockMinutes(end)
	if err != nil {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()

	switch {
	case startMin == endMin:
		return false
	case startMin < endMin:
		return nowMin >= startMin && nowMin < endMin
	default:
		return nowMin >= startMin || nowMin < endMin
	}
}

func parseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}

	return t.Hour()*60 + t.Minute(), nil
}

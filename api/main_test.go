package api

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/fireflycare/firefly-BE/internal/notifier"
	"github.com/fireflycare/firefly-BE/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, store db.Store) *Server {
	config := &util.Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		TokenSecretKey: "0123456789abcdef0123456789abcdef",
	}

	registry := event.NewRegistry()
	notifierService := notifier.NewService(store, registry, nil)

	server, err := NewServer(store, config, registry, notifierService)
	require.NoError(t, err)

	return server
}

func newAccessToken(t *testing.T, server *Server, userID string) string {
	accessToken, _, err := server.tokenMaker.CreateToken(userID, time.Minute)
	require.NoError(t, err)
	return accessToken
}

// memStore is an in-memory db.Store for handler tests.
type memStore struct {
	mu                 sync.Mutex
	nextNotificationID int64
	nextDeliveryID     int64
	notifications      map[int64]db.Notification
	deliveries         map[int64]db.DeliveryRecord
	users              map[string]db.User
	statusUpdateCalls  map[int64]int
}

func newMemStore() *memStore {
	return &memStore{
		notifications:     make(map[int64]db.Notification),
		deliveries:        make(map[int64]db.DeliveryRecord),
		users:             make(map[string]db.User),
		statusUpdateCalls: make(map[int64]int),
	}
}

func (s *memStore) addUser(id string, role db.UserRole) db.User {
	user := db.User{ID: id, Email: id + "@example.com", FullName: "User " + id, Role: role, Timezone: "UTC"}
	s.users[id] = user
	return user
}

func (s *memStore) addNotification(userID, title string) db.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	n := db.Notification{
		ID:        s.nextNotificationID,
		UserID:    userID,
		Type:      db.NotificationTypeMessage,
		Title:     title,
		Message:   "body",
		CreatedAt: time.Now(),
	}
	s.notifications[n.ID] = n
	return n
}

func (s *memStore) addPendingDelivery(n db.Notification) db.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDeliveryID++
	d := db.DeliveryRecord{
		ID:             s.nextDeliveryID,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Channel:        db.DeliveryChannelLive,
		Status:         db.DeliveryStatusPending,
		CreatedAt:      time.Now(),
	}
	s.deliveries[d.ID] = d
	return d
}

func (s *memStore) delivery(id int64) db.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[id]
}

func (s *memStore) statusUpdates(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusUpdateCalls[id]
}

func (s *memStore) CreateNotification(_ context.Context, arg db.CreateNotificationParams) (db.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	n := db.Notification{
		ID:        s.nextNotificationID,
		UserID:    arg.UserID,
		Type:      arg.Type,
		Title:     arg.Title,
		Message:   arg.Message,
		CreatedAt: time.Now(),
	}
	s.notifications[n.ID] = n
	return n, nil
}

func (s *memStore) GetNotificationByID(_ context.Context, id int64) (db.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return db.Notification{}, db.ErrRecordNotFound
	}
	return n, nil
}

func (s *memStore) ListUserNotifications(_ context.Context, arg db.ListUserNotificationsParams) ([]db.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := []db.Notification{}
	for _, n := range s.notifications {
		if n.UserID == arg.UserID {
			notifications = append(notifications, n)
		}
	}
	return notifications, nil
}

func (s *memStore) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *memStore) MarkNotificationAsRead(_ context.Context, arg db.MarkNotificationAsReadParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[arg.ID]; ok && n.UserID == arg.UserID && !n.IsRead {
		now := time.Now()
		n.IsRead = true
		n.ReadAt = &now
		s.notifications[arg.ID] = n
	}
	return nil
}

func (s *memStore) MarkAllNotificationsAsRead(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			s.notifications[id] = n
		}
	}
	return nil
}

func (s *memStore) DeleteNotification(_ context.Context, arg db.DeleteNotificationParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[arg.ID]; !ok || n.UserID != arg.UserID {
		return db.ErrRecordNotFound
	}
	delete(s.notifications, arg.ID)
	return nil
}

func (s *memStore) DeleteExpiredNotifications(_ context.Context) (int64, error) {
	return 0, nil
}

func (s *memStore) CreateDeliveryRecord(_ context.Context, arg db.CreateDeliveryRecordParams) (db.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDeliveryID++
	d := db.DeliveryRecord{
		ID:             s.nextDeliveryID,
		NotificationID: arg.NotificationID,
		UserID:         arg.UserID,
		Channel:        arg.Channel,
		Status:         arg.Status,
		LatencyMs:      arg.LatencyMs,
		CreatedAt:      time.Now(),
	}
	s.deliveries[d.ID] = d
	return d, nil
}

func (s *memStore) ListPendingDeliveries(_ context.Context, arg db.ListPendingDeliveriesParams) ([]db.PendingDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := []db.PendingDelivery{}
	for _, d := range s.deliveries {
		if d.UserID == arg.UserID && d.Channel == arg.Channel && d.Status == db.DeliveryStatusPending {
			pending = append(pending, db.PendingDelivery{Delivery: d, Notification: s.notifications[d.NotificationID]})
		}
	}
	return pending, nil
}

func (s *memStore) UpdateDeliveryStatus(_ context.Context, arg db.UpdateDeliveryStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusUpdateCalls[arg.ID]++
	d, ok := s.deliveries[arg.ID]
	if !ok || d.Status != db.DeliveryStatusPending {
		return nil
	}
	d.Status = arg.Status
	if arg.LatencyMs != nil {
		d.LatencyMs = arg.LatencyMs
	}
	s.deliveries[arg.ID] = d
	return nil
}

func (s *memStore) GetUserByID(_ context.Context, id string) (db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return db.User{}, db.ErrRecordNotFound
	}
	return user, nil
}

func (s *memStore) ListFamilyMembers(_ context.Context, familyID int64) ([]db.User, error) {
	return nil, fmt.Errorf("family %d not found", familyID)
}

func (s *memStore) ShouldSendNotification(_ context.Context, _ string, _ db.NotificationType, _ db.DeliveryChannel) (bool, error) {
	return true, nil
}

func (s *memStore) IsWithinQuietHours(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *memStore) Ping(_ context.Context) error { return nil }

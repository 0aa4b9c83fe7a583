package audit

import (
	"testing"
	"time"

	"github.com/safetrack/trustsync/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestService_Record(t *testing.T) {
	db := testutils.SetupTestDB(t, &Event{})
	service := NewService(db, nil)

	err := service.Record(1, ActionMFAEnabled, "TOTP enrollment confirmed", Meta{
		SourceAddr: "203.0.113.9",
		UserAgent:  chromeWindowsUA,
	})
	require.NoError(t, err)

	var event Event
	require.NoError(t, db.First(&event).Error)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, uint(1), event.UserID)
	assert.Equal(t, ActionMFAEnabled, event.Action)
	assert.Equal(t, "203.0.113.9", event.SourceAddr)
	assert.Contains(t, event.Device, "Chrome")
	assert.Contains(t, event.Device, "Windows")
}

func TestService_Record_EmptyMeta(t *testing.T) {
	db := testutils.SetupTestDB(t, &Event{})
	service := NewService(db, nil)

	err := service.Record(2, ActionMFAFailed, "invalid code", Meta{})
	require.NoError(t, err)

	var event Event
	require.NoError(t, db.First(&event).Error)
	assert.Empty(t, event.Device)
	assert.Empty(t, event.SourceAddr)
}

func TestService_ListForUser(t *testing.T) {
	db := testutils.SetupTestDB(t, &Event{})
	service := NewService(db, nil)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		event := &Event{
			ID:        "evt-" + string(rune('a'+i)),
			UserID:    7,
			Action:    ActionMFAFailed,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(event).Error)
	}
	require.NoError(t, db.Create(&Event{ID: "evt-other", UserID: 8, Action: ActionMFAEnabled}).Error)

	events, err := service.ListForUser(7, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// newest first
	assert.Equal(t, "evt-c", events[0].ID)
	assert.Equal(t, "evt-a", events[2].ID)
}

func TestService_ListForUser_Limit(t *testing.T) {
	db := testutils.SetupTestDB(t, &Event{})
	service := NewService(db, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, service.Record(9, ActionMFAFailed, "invalid code", Meta{}))
	}

	events, err := service.ListForUser(9, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDescribeDevice(t *testing.T) {
	assert.Equal(t, "", describeDevice(""))
	assert.Contains(t, describeDevice(chromeWindowsUA), "Chrome 120 on Windows")
}

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parking-status-backend/config"
	"parking-status-backend/internal/api"
	"parking-status-backend/internal/db"
	"parking-status-backend/internal/model"
	"parking-status-backend/internal/reconcile"
	"parking-status-backend/internal/store"
	"parking-status-backend/internal/stream"
	"parking-status-backend/internal/sweeper"
)

// TestZoneStatusLifecycle walks one zone through the full pipeline: a sensor
// report, an operator override with expiry, and the sweep that clears it,
// verifying the HTTP surface, the stream output, and the audit trail at each
// step.
func TestZoneStatusLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// 1. A file-backed SQLite database, migrated like production.
	testDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "integration.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	// 2. Minimal configuration: wide-open rate limit, sensor key set.
	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Sensors.APIKey = "integration-key"
	cfg.Sweeper.Interval = time.Minute

	// 3. Real hub with one subscribed client capturing the wire output.
	gormStore := store.NewGormStore(testDB)
	hub := stream.NewHub(15 * time.Second)
	svc := sweeper.NewService(cfg, gormStore, hub, nil)
	router := api.NewRouter(cfg, gormStore, hub, nil, nil)

	// 4. Seed a zone and an admin operator.
	require.NoError(t, testDB.Create(&model.Zone{ID: "library-lot", Name: "Library Lot", Lat: -17.78, Lng: 31.05}).Error)
	require.NoError(t, testDB.Create(&model.Operator{ID: "admin-1", Email: "ops@example.edu", Role: model.RoleAdmin}).Error)

	var wire bytes.Buffer
	_, err = hub.Subscribe(&wire, func() ([]reconcile.EffectiveZoneView, error) {
		return gormStore.Snapshot(context.Background())
	})
	require.NoError(t, err)

	do := func(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		router.ServeHTTP(w, req)
		return w
	}
	asSensor := map[string]string{"X-Sensor-Key": "integration-key"}
	asAdmin := map[string]string{"X-Operator-Id": "admin-1"}

	currentView := func() reconcile.EffectiveZoneView {
		w := do("GET", "/api/zones/snapshot", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var views []reconcile.EffectiveZoneView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		require.Len(t, views, 1)
		return views[0]
	}

	t.Run("Cycle 1: Sensor Reports Availability", func(t *testing.T) {
		w := do("POST", "/api/sensors/zone-status",
			`{"sensorId":"unitv2-lot-library-01","zoneId":"library-lot","status":"AVAILABLE","confidence":"HIGH","availableCount":12}`,
			asSensor)
		require.Equal(t, http.StatusOK, w.Code)

		view := currentView()
		assert.Equal(t, model.StatusAvailable, view.EffectiveStatus)
		require.NotNil(t, view.EffectiveAvailableCount)
		assert.Equal(t, 12, *view.EffectiveAvailableCount)
		assert.False(t, view.OverrideActive)
	})

	t.Run("Cycle 2: Operator Forces FULL", func(t *testing.T) {
		expires := time.Now().UTC().Add(-time.Second).Format(time.RFC3339)
		w := do("PATCH", "/api/admin/zones/library-lot/override",
			`{"forcedStatus":"FULL","reason":"graduation ceremony","expiresAt":"`+expires+`"}`,
			asAdmin)
		require.Equal(t, http.StatusOK, w.Code)

		view := currentView()
		assert.Equal(t, model.StatusFull, view.EffectiveStatus)
		assert.True(t, view.OverrideActive)
		// The unforced count still comes from the sensor.
		require.NotNil(t, view.EffectiveAvailableCount)
		assert.Equal(t, 12, *view.EffectiveAvailableCount)
	})

	t.Run("Cycle 3: Sweep Expires the Override", func(t *testing.T) {
		svc.SweepOnce(context.Background())

		view := currentView()
		assert.Equal(t, model.StatusAvailable, view.EffectiveStatus, "sensor data is authoritative again")
		assert.False(t, view.OverrideActive)

		var overrideCount int64
		testDB.Model(&model.ZoneOverride{}).Count(&overrideCount)
		assert.Equal(t, int64(0), overrideCount)
	})

	t.Run("Audit Trail", func(t *testing.T) {
		w := do("GET", "/api/admin/zones/library-lot/override-events", "", asAdmin)
		require.Equal(t, http.StatusOK, w.Code)

		var events []store.OverrideEventView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		require.Len(t, events, 2)

		assert.Equal(t, model.ActionExpire, events[0].Action)
		assert.Nil(t, events[0].PerformedByEmail)
		assert.Equal(t, "Auto-expired by system", events[0].Reason)

		assert.Equal(t, model.ActionSet, events[1].Action)
		require.NotNil(t, events[1].PerformedByEmail)
		assert.Equal(t, "ops@example.edu", *events[1].PerformedByEmail)
	})

	t.Run("Stream Output", func(t *testing.T) {
		out := wire.String()
		// One initial snapshot, then a patch per mutation: report, override,
		// expiry.
		assert.Equal(t, 1, strings.Count(out, "event:"+stream.EventSnapshot))
		assert.Equal(t, 3, strings.Count(out, "event:"+stream.EventPatch))
		assert.Less(t, strings.Index(out, stream.EventSnapshot), strings.Index(out, stream.EventPatch))
	})
}

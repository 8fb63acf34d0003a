package placeholder

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// source is a Source backed by fixed records.
type source struct {
	kits    map[string]kit.Definition
	records map[ledger.Key]ledger.Record
	loaded  map[uuid.UUID]bool
	now     time.Time
}

func (s source) Kit(id string) (kit.Definition, error) {
	def, ok := s.kits[kit.NormaliseID(id)]
	if !ok {
		return kit.Definition{}, engine.ErrUnknownKit
	}
	return def, nil
}

func (s source) Snapshot(player uuid.UUID, kitID string) ledger.Record {
	k := ledger.Key{Player: player, Kit: kitID}
	if r, ok := s.records[k]; ok {
		return r
	}
	return ledger.NewRecord(k)
}

func (s source) Remaining(player uuid.UUID, kitID string) time.Duration {
	return s.Snapshot(player, kitID).Remaining(s.now)
}

func (s source) Loaded(player uuid.UUID) bool {
	return s.loaded[player]
}

var (
	steve = uuid.MustParse("8f7c2b2e-7d7a-4a3e-9a52-1d3e6f0b1c11")
	alex  = uuid.MustParse("0b6c1d9e-2f4a-4b8c-8d7e-6a5b4c3d2e1f")
)

func newSource() source {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return source{
		kits: map[string]kit.Definition{
			"starter": {ID: "starter", Enabled: true},
			"pvp_kit": {ID: "pvp_kit", Enabled: true},
			"founder": {ID: "founder", Enabled: true, RequiresUnlock: true},
		},
		records: map[ledger.Key]ledger.Record{
			{Player: steve, Kit: "pvp_kit"}: {Player: steve, Kit: "pvp_kit", NextAvailableAt: now.Add(90*time.Minute + 5*time.Second), TimesClaimed: 3},
		},
		loaded: map[uuid.UUID]bool{steve: true},
		now:    now,
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(newSource())

	tests := []struct {
		kit, field, want string
	}{
		{"pvp_kit", FieldCooldownRemaining, "01:30:05"},
		{"PVP_KIT", FieldTimesClaimed, "3"},
		{"starter", FieldCooldownRemaining, "00:00:00"},
		{"starter", FieldUnlocked, "true"},
		{"founder", FieldUnlocked, "false"},
	}
	for _, tt := range tests {
		v, err := r.Resolve(steve, tt.kit, tt.field)
		require.NoError(t, err, tt.kit+"/"+tt.field)
		assert.Equal(t, tt.want, v, tt.kit+"/"+tt.field)
	}

	_, err := r.Resolve(steve, "missing", FieldTimesClaimed)
	assert.ErrorIs(t, err, engine.ErrUnknownKit)
	_, err = r.Resolve(steve, "starter", "colour")
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = r.Resolve(alex, "starter", FieldTimesClaimed)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestExpand(t *testing.T) {
	r := NewResolver(newSource())
	got := r.Expand(steve, "PvP: %openkits_pvp_kit_cooldown_remaining% (%openkits_pvp_kit_times_claimed%x), %openkits_missing_unlocked% %openkits_starter_colour%")
	assert.Equal(t, "PvP: 01:30:05 (3x), %openkits_missing_unlocked% %openkits_starter_colour%", got)
}

func newTestServer() *Server {
	players := func(name string) (uuid.UUID, bool) {
		if strings.EqualFold(name, "steve") {
			return steve, true
		}
		return uuid.Nil, false
	}
	return NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), NewResolver(newSource()), players, "secret")
}

func do(t *testing.T, s *Server, req *http.Request) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestServerResolve(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		path string
		code int
		key  string
		want string
	}{
		{"/placeholder/Steve/pvp_kit/times_claimed", http.StatusOK, "value", "3"},
		{"/placeholder/" + steve.String() + "/pvp_kit/cooldown_remaining", http.StatusOK, "value", "01:30:05"},
		{"/placeholder/Herobrine/pvp_kit/times_claimed", http.StatusNotFound, "error", "no player found"},
		{"/placeholder/" + alex.String() + "/pvp_kit/times_claimed", http.StatusNotFound, "error", ErrNotLoaded.Error()},
		{"/placeholder/Steve/missing/times_claimed", http.StatusNotFound, "error", engine.ErrUnknownKit.Error()},
		{"/placeholder/Steve/pvp_kit/colour", http.StatusBadRequest, "error", ErrUnknownField.Error()},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("Authorization", "secret")
		code, body := do(t, s, req)
		assert.Equal(t, tt.code, code, tt.path)
		assert.Equal(t, tt.want, body[tt.key], tt.path)
	}
}

func TestServerRequiresKey(t *testing.T) {
	s := newTestServer()
	for _, key := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/placeholder/Steve/pvp_kit/times_claimed", nil)
		if key != "" {
			req.Header.Set("Authorization", key)
		}
		code, body := do(t, s, req)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthorized", body["error"])
	}
}

func TestServerExpand(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/placeholder/expand", strings.NewReader(`{"player":"steve","text":"%openkits_pvp_kit_times_claimed% claims"}`))
	req.Header.Set("Authorization", "secret")
	req.Header.Set("Content-Type", "application/json")
	code, body := do(t, s, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3 claims", body["text"])

	req = httptest.NewRequest(http.MethodPost, "/placeholder/expand", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Authorization", "secret")
	code, _ = do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, code)
}

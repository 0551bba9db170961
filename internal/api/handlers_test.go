package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/notify"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/repository/memory"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/ignite/giftdrive/internal/service/claim"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "letmein"

type testEnv struct {
	t         *testing.T
	handlers  *Handlers
	router    http.Handler
	links     *donorlink.Signer
	campaigns *campaign.Service
	campaign  *domain.Campaign
	family    *domain.Family
	maya      *domain.Person
	bike      *domain.Gift // qty 1, Maya
	socks     *domain.Gift // qty 3, unassigned
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	campaigns := campaign.NewService(store.Campaigns())
	claims := claim.NewService(store.Claims(), notify.NopNotifier{}, claim.DefaultConfig())

	c, err := campaigns.Create(ctx, campaign.CreateInput{Name: "Winter Drive", DropOffAddress: "12 Main St"})
	require.NoError(t, err)
	_, err = campaigns.Activate(ctx, c.ID)
	require.NoError(t, err)
	f, err := campaigns.CreateFamily(ctx, c.ID, "Family A")
	require.NoError(t, err)
	maya, err := campaigns.AddPerson(ctx, f.ID, campaign.PersonInput{FirstName: "Maya", Role: "child"})
	require.NoError(t, err)
	bike, err := campaigns.AddGift(ctx, f.ID, campaign.GiftInput{PersonID: maya.ID, Name: "Bike", Quantity: 1})
	require.NoError(t, err)
	socks, err := campaigns.AddGift(ctx, f.ID, campaign.GiftInput{Name: "Socks", Quantity: 3})
	require.NoError(t, err)

	h := NewHandlers(claims, campaigns)
	h.now = func() time.Time { return time.Date(2026, 12, 18, 9, 0, 0, 0, time.UTC) }
	links := donorlink.NewSigner("test-secret", time.Hour, "https://gifts.example.org")
	h.SetDonorLinks(links)
	return &testEnv{
		t:         t,
		handlers:  h,
		links:     links,
		router:    SetupRoutes(h, RouteOptions{AdminToken: testToken}),
		campaigns: campaigns,
		campaign:  c,
		family:    f,
		maya:      maya,
		bike:      bike,
		socks:     socks,
	}
}

func (e *testEnv) do(method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decodeBody(t, w, &resp)
	return resp.Code
}

func donorBody(qty int) map[string]interface{} {
	return map[string]interface{}{
		"donor_name":  "Ann Lee",
		"donor_email": "Ann@Example.com",
		"quantity":    qty,
	}
}

func TestClaimGift(t *testing.T) {
	e := setupTestEnv(t)

	w := e.do("POST", "/api/gifts/"+e.socks.ID+"/claims", donorBody(2), false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c domain.Claim
	decodeBody(t, w, &c)
	assert.Equal(t, 2, c.Quantity)
	assert.Equal(t, "ann@example.com", c.DonorEmail)

	w = e.do("GET", "/api/gifts/"+e.socks.ID, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Available int    `json:"available_quantity"`
		Status    string `json:"status"`
		Claims    []any  `json:"claims"`
	}
	decodeBody(t, w, &view)
	assert.Equal(t, 1, view.Available)
	assert.Equal(t, "partial", view.Status)
	assert.Empty(t, view.Claims, "donor details stay private")

	w = e.do("POST", "/api/gifts/"+e.socks.ID+"/claims", donorBody(2), false)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_availability", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "just claimed by someone else")
}

func TestClaimGift_Errors(t *testing.T) {
	e := setupTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"bad email", "/api/gifts/" + e.bike.ID + "/claims",
			map[string]interface{}{"donor_name": "Ann", "donor_email": "nope", "quantity": 1},
			http.StatusBadRequest, "validation"},
		{"zero quantity", "/api/gifts/" + e.bike.ID + "/claims", donorBody(0),
			http.StatusBadRequest, "validation"},
		{"unknown gift", "/api/gifts/missing/claims", donorBody(1),
			http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do("POST", tt.path, tt.body, false)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/gifts/"+e.bike.ID+"/claims", strings.NewReader("{"))
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestClaimGift_CampaignClosed(t *testing.T) {
	e := setupTestEnv(t)
	_, err := e.campaigns.Close(context.Background(), e.campaign.ID)
	require.NoError(t, err)

	w := e.do("POST", "/api/gifts/"+e.bike.ID+"/claims", donorBody(1), false)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Contains(t, w.Body.String(), "donations are closed")
}

func TestAdoptFamily(t *testing.T) {
	e := setupTestEnv(t)

	w := e.do("POST", "/api/gifts/"+e.socks.ID+"/claims", donorBody(1), false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do("GET", "/api/families/"+e.family.ID+"/preview", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Items []previewItem `json:"items"`
		Total int           `json:"total_quantity"`
	}
	decodeBody(t, w, &preview)
	assert.Len(t, preview.Items, 2)
	assert.Equal(t, 3, preview.Total)

	w = e.do("POST", "/api/families/"+e.family.ID+"/adopt",
		map[string]string{"donor_name": "Bo", "donor_email": "bo@example.com"}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res claim.AdoptionResult
	decodeBody(t, w, &res)
	assert.Equal(t, 2, res.Adopted)
	assert.Equal(t, "Family A", res.FamilyAlias)

	w = e.do("POST", "/api/families/"+e.family.ID+"/adopt",
		map[string]string{"donor_name": "Cy", "donor_email": "cy@example.com"}, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do("GET", "/api/campaigns/"+e.campaign.ID, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var view campaign.CampaignView
	decodeBody(t, w, &view)
	require.Len(t, view.Families, 1)
	assert.Equal(t, 100, view.Families[0].Progress.PercentComplete)
}

func TestAdoptPerson(t *testing.T) {
	e := setupTestEnv(t)
	body := map[string]string{"donor_name": "Bo", "donor_email": "bo@example.com"}

	w := e.do("POST", fmt.Sprintf("/api/families/%s/persons/%s/adopt", e.family.ID, e.maya.ID), body, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res claim.AdoptionResult
	decodeBody(t, w, &res)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, e.bike.ID, res.Claims[0].GiftID)

	w = e.do("POST", fmt.Sprintf("/api/families/%s/persons/nobody/adopt", e.family.ID), body, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do("GET", "/api/families/"+e.family.ID, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var fv campaign.FamilyView
	decodeBody(t, w, &fv)
	require.Len(t, fv.Persons, 1)
	assert.True(t, fv.Persons[0].FullyClaimed)
	assert.Len(t, fv.Unassigned, 1)
}

func TestDonorClaims(t *testing.T) {
	e := setupTestEnv(t)
	e.do("POST", "/api/gifts/"+e.bike.ID+"/claims", donorBody(1), false)

	token, err := e.links.Token("ANN@example.com")
	require.NoError(t, err)
	w := e.do("GET", "/api/donors/claims?token="+token, nil, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Claims []domain.DonorClaim `json:"claims"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Claims, 1)
	assert.Equal(t, "Bike", resp.Claims[0].GiftName)
	assert.Equal(t, "Winter Drive", resp.Claims[0].CampaignName)

	token, err = e.links.Token("nobody@example.com")
	require.NoError(t, err)
	w = e.do("GET", "/api/donors/claims?token="+token, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"claims":[]}`, w.Body.String())
}

func TestDonorClaims_RequiresSignedLink(t *testing.T) {
	e := setupTestEnv(t)
	e.do("POST", "/api/gifts/"+e.bike.ID+"/claims", donorBody(1), false)

	w := e.do("GET", "/api/donors/claims?email=ann@example.com", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "link_required", errorCode(t, w))

	forged, err := donorlink.NewSigner("guessed", time.Hour, "").Token("ann@example.com")
	require.NoError(t, err)
	w = e.do("GET", "/api/donors/claims?token="+forged, nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "link_invalid", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "Bike")

	expired, err := donorlink.NewSigner("test-secret", -time.Minute, "").Token("ann@example.com")
	require.NoError(t, err)
	w = e.do("GET", "/api/donors/claims?token="+expired, nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "link_expired", errorCode(t, w))

	unsigned := SetupRoutes(NewHandlers(nil, nil), RouteOptions{})
	rec := httptest.NewRecorder()
	unsigned.ServeHTTP(rec, httptest.NewRequest("GET", "/api/donors/claims?email=ann@example.com", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "lookup is not mounted without a signing secret")
}

func TestAdminDonorLink(t *testing.T) {
	e := setupTestEnv(t)
	e.do("POST", "/api/gifts/"+e.bike.ID+"/claims", donorBody(1), false)

	w := e.do("GET", "/api/admin/donors/link?email=not-an-email", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("GET", "/api/admin/donors/link?email=Ann@Example.com", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var link struct {
		Email string `json:"email"`
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	decodeBody(t, w, &link)
	assert.Equal(t, "ann@example.com", link.Email)
	assert.Contains(t, link.URL, "https://gifts.example.org/api/donors/claims?token=")

	w = e.do("GET", "/api/donors/claims?token="+link.Token, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bike")
}

func TestAdminAuth(t *testing.T) {
	e := setupTestEnv(t)

	w := e.do("GET", "/api/admin/campaigns", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/admin/campaigns", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	w = e.do("GET", "/api/admin/campaigns", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	open := SetupRoutes(e.handlers, RouteOptions{})
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest("GET", "/api/admin/campaigns", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "admin routes are not mounted without a token")
}

func TestAdminCampaignLifecycle(t *testing.T) {
	e := setupTestEnv(t)

	w := e.do("POST", "/api/admin/campaigns/", map[string]string{"name": "Spring Drive"}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c domain.Campaign
	decodeBody(t, w, &c)
	assert.Equal(t, domain.CampaignDraft, c.Status)

	w = e.do("POST", "/api/admin/campaigns/"+c.ID+"/status", map[string]string{"status": "ARCHIVED"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, w))

	w = e.do("POST", "/api/admin/campaigns/"+c.ID+"/status", map[string]string{"status": "ACTIVE"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do("POST", "/api/admin/campaigns/"+c.ID+"/status", map[string]string{"status": "PAUSED"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("PATCH", "/api/admin/campaigns/"+c.ID, map[string]string{"drop_off_address": "Gym"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"drop_off_address":"Gym"`)

	w = e.do("GET", "/api/admin/campaigns/?status=ACTIVE&limit=1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []domain.Campaign `json:"data"`
		Pagination PaginationMeta    `json:"pagination"`
	}
	decodeBody(t, w, &page)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	w = e.do("DELETE", "/api/admin/campaigns/"+c.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do("GET", "/api/campaigns/"+c.ID, nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminFamilyManagement(t *testing.T) {
	e := setupTestEnv(t)

	w := e.do("POST", "/api/admin/campaigns/"+e.campaign.ID+"/families", map[string]string{"alias": "Family B"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var f domain.Family
	decodeBody(t, w, &f)

	w = e.do("POST", "/api/admin/families/"+f.ID+"/persons", map[string]string{"first_name": "Leo"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var p domain.Person
	decodeBody(t, w, &p)

	w = e.do("POST", "/api/admin/families/"+f.ID+"/gifts",
		map[string]interface{}{"name": "Scarf", "quantity": 2, "person_id": p.ID}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var g domain.Gift
	decodeBody(t, w, &g)

	w = e.do("POST", "/api/admin/families/"+f.ID+"/gifts",
		map[string]interface{}{"name": "Hat", "quantity": 1, "person_id": e.maya.ID}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "person from another family")

	w = e.do("DELETE", "/api/admin/persons/"+p.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do("DELETE", "/api/admin/gifts/"+g.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do("DELETE", "/api/admin/gifts/"+g.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do("DELETE", "/api/admin/families/"+f.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminRemoveClaim(t *testing.T) {
	e := setupTestEnv(t)
	w := e.do("POST", "/api/gifts/"+e.socks.ID+"/claims", donorBody(3), false)
	require.Equal(t, http.StatusCreated, w.Code)
	var c domain.Claim
	decodeBody(t, w, &c)

	w = e.do("GET", "/api/admin/campaigns/"+e.campaign.ID+"/claims", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), c.ID)

	w = e.do("DELETE", "/api/admin/claims/"+c.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do("DELETE", "/api/admin/claims/"+c.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do("GET", "/api/gifts/"+e.socks.ID, nil, false)
	assert.Contains(t, w.Body.String(), `"available_quantity":3`)

	w = e.do("GET", "/api/admin/campaigns/missing/claims", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeArchiver struct {
	key  string
	body []byte
	err  error
}

func (f *fakeArchiver) Upload(_ context.Context, campaignID string, csv []byte, at time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.body = csv
	f.key = fmt.Sprintf("manifests/%s/%s.csv", campaignID, at.Format("20060102-150405"))
	return f.key, nil
}

func TestDownloadManifest(t *testing.T) {
	e := setupTestEnv(t)
	e.do("POST", "/api/gifts/"+e.bike.ID+"/claims", donorBody(1), false)

	arch := &fakeArchiver{}
	e.handlers.SetManifestArchiver(arch)

	w := e.do("GET", "/api/admin/campaigns/"+e.campaign.ID+"/manifest.csv", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "manifest-"+e.campaign.ID+"-20261218.csv")
	assert.Equal(t, arch.key, w.Header().Get("X-Manifest-Key"))
	assert.Equal(t, w.Body.Bytes(), arch.body)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Family A,,Socks,3,0,,,,", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "Family A,Maya,Bike,1,1,Ann Lee,ann@example.com,1,"))

	arch.err = errors.New("bucket gone")
	w = e.do("GET", "/api/admin/campaigns/"+e.campaign.ID+"/manifest.csv", nil, true)
	assert.Equal(t, http.StatusOK, w.Code, "archive failure does not block the download")
	assert.Empty(t, w.Header().Get("X-Manifest-Key"))
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", fmt.Errorf("claim gift: %w", claim.ErrTransientConflict), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"wrapped not found", fmt.Errorf("get: %w", campaign.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("pq: relation does not exist"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondServiceError(w, httptest.NewRequest("GET", "/x", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}

	w := httptest.NewRecorder()
	respondServiceError(w, httptest.NewRequest("GET", "/x", nil), claim.ErrTransientConflict)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, bearerToken(req))
	req.Header.Set("Authorization", "bearer  abc ")
	assert.Equal(t, "abc", bearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))
}

func TestHealth(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	q := notify.NewQueue(rdb, "")
	require.NoError(t, q.Push(context.Background(), notify.Envelope{Event: domain.ClaimEvent{Type: domain.EventClaimCreated}}))

	e := setupTestEnv(t)
	e.handlers.SetHealthChecker(NewHealthChecker(nil, rdb, nil, q))
	router := SetupRoutes(e.handlers, RouteOptions{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var hs HealthStatus
	decodeBody(t, w, &hs)
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "up", hs.Checks["redis"].Status)
	assert.Equal(t, "1 notifications queued", hs.Checks["notify_queue"].Message)
	assert.Equal(t, notConfigured, hs.Checks["database"].Message)

	mr.Close()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code, "redis is not critical")
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: notConfigured},
		"redis":    {Status: "up"},
	}))
	assert.Equal(t, "3d 4h 0m 5s", formatUptime(76*time.Hour+5*time.Second))
}

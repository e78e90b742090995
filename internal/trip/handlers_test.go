package trip

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/auth"
	"github.com/agehcx/hiking-app-sub000/internal/config"
	"github.com/agehcx/hiking-app-sub000/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"go.uber.org/zap"
)

type fakePhotos struct {
	saved   []string
	removed []string
	err     error
}

func (f *fakePhotos) Save(fh *multipart.FileHeader, prefix string) (storage.Object, error) {
	if f.err != nil {
		return storage.Object{}, f.err
	}
	name := prefix + "-" + fh.Filename
	f.saved = append(f.saved, name)
	return storage.Object{Name: name, URL: storage.PublicPath + "/" + name, ContentType: "image/png", Size: fh.Size}, nil
}

func (f *fakePhotos) Remove(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

var testTokens = auth.NewTokens(config.AuthConfig{
	JWTSecret:        strings.Repeat("s", 32),
	RefreshSecret:    strings.Repeat("r", 32),
	JWTExpiresIn:     time.Hour,
	RefreshExpiresIn: time.Hour,
})

func bearer(t *testing.T, userID string) string {
	t.Helper()
	pair, err := testTokens.Issue(auth.Payload{UserID: userID})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + pair.AccessToken
}

func newTestApp(mock pgxmock.PgxPoolIface, photos PhotoStore) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.StatusOf(err)).JSON(fiber.Map{"message": err.Error()})
		},
	})
	h := NewHandlers(NewService(mock), photos, zap.NewNop())
	RegisterRoutes(app.Group("/trips"), h, auth.JWTMiddleware(testTokens), auth.OptionalJWTMiddleware(testTokens))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestCreateTripHandlerAcceptsDateOnly(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	mock.ExpectExec(`INSERT INTO trips`).
		WithArgs(pgxmock.AnyArg(), ownerID, StatusPlanning, false,
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := map[string]any{
		"title":        "Eiger trail",
		"destination":  map[string]any{"name": "Grindelwald", "country": "Switzerland", "coordinates": map[string]float64{"lat": 46.6, "lng": 8.0}},
		"dates":        map[string]any{"startDate": "2025-06-01", "endDate": "2025-06-04"},
		"difficulty":   "moderate",
		"travelStyle":  "adventure",
		"trail":        map[string]any{"name": "Eiger Trail", "type": "hiking"},
		"planning":     map[string]any{"steps": []map[string]any{{"title": "Book hut", "dueDate": "2025-05-20"}}},
		"participants": []map[string]any{{"userId": memberID, "status": "confirmed", "joinedAt": "2025-05-01"}},
	}
	resp := doJSON(t, app, http.MethodPost, "/trips/", bearer(t, ownerID), body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	var out struct {
		Trip map[string]any `json:"trip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Trip["durationDays"] != float64(3) {
		t.Fatalf("expected durationDays 3, got %v", out.Trip["durationDays"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateTripHandlerRejectsBadDate(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	body := map[string]any{
		"title": "Eiger trail",
		"dates": map[string]any{"startDate": "June 1st", "endDate": "2025-06-04"},
	}
	if resp := doJSON(t, app, http.MethodPost, "/trips/", bearer(t, ownerID), body); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateTripHandler(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	if resp := doJSON(t, app, http.MethodPost, "/trips/", "", sampleTrip()); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	mock.ExpectExec(`INSERT INTO trips`).
		WithArgs(pgxmock.AnyArg(), ownerID, StatusPlanning, false, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := map[string]any{
		"title":       "Eiger trail",
		"destination": map[string]any{"name": "Grindelwald", "country": "Switzerland", "coordinates": map[string]float64{"lat": 46.6, "lng": 8.0}},
		"dates":       map[string]any{"startDate": "2025-06-01T00:00:00Z", "endDate": "2025-06-04T00:00:00Z", "duration": 9},
		"difficulty":  "moderate",
		"travelStyle": "adventure",
		"trail":       map[string]any{"name": "Eiger Trail", "type": "hiking", "distance": 6, "elevationGain": 400, "estimatedTime": 3},
	}
	resp := doJSON(t, app, http.MethodPost, "/trips/", bearer(t, ownerID), body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}

	var out struct {
		Trip map[string]any `json:"trip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Trip["durationDays"] != float64(3) || out.Trip["completionPercentage"] != float64(0) {
		t.Fatalf("unexpected derived fields: %v", out.Trip)
	}
	sharing, _ := out.Trip["sharing"].(map[string]any)
	if sharing["allowRatings"] != true {
		t.Fatalf("expected allowRatings default, got %v", sharing)
	}
	dates, _ := out.Trip["dates"].(map[string]any)
	if dates["duration"] != float64(3) {
		t.Fatalf("expected duration derived from dates, got %v", dates["duration"])
	}
}

func TestCreateTripHandlerValidation(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})
	resp := doJSON(t, app, http.MethodPost, "/trips/", bearer(t, ownerID), map[string]any{"title": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetTripHandlerVisibility(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	if resp := doJSON(t, app, http.MethodGet, "/trips/not-a-uuid", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.StatusCode)
	}

	expectGet(t, mock, storedTrip())
	if resp := doJSON(t, app, http.MethodGet, "/trips/"+tripID, "", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous on private trip, got %d", resp.StatusCode)
	}

	expectGet(t, mock, storedTrip())
	if resp := doJSON(t, app, http.MethodGet, "/trips/"+tripID, bearer(t, ownerID), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", resp.StatusCode)
	}
}

func TestListTripHandlers(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	mock.ExpectQuery(`FROM trips WHERE is_public = \$1 AND \$2 = ANY\(tags\) AND start_date >= \$3`).
		WithArgs(true, "alps", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(pgxmock.NewRows(tripColumns))
	resp := doJSON(t, app, http.MethodGet, "/trips/public?tag=alps&from=2025-06-01", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public list status %d", resp.StatusCode)
	}

	if resp := doJSON(t, app, http.MethodGet, "/trips/public?from=june", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}

	mock.ExpectQuery(`FROM trips WHERE user_id = \$1 AND status = \$2`).
		WithArgs(ownerID, StatusActive).
		WillReturnRows(pgxmock.NewRows(tripColumns).AddRow(tripRow(t, storedTrip())...))
	resp = doJSON(t, app, http.MethodGet, "/trips/?status=active", bearer(t, ownerID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mine list status %d", resp.StatusCode)
	}
	var out struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Count != 1 {
		t.Fatalf("expected one trip, got %d", out.Count)
	}
}

func TestUpdateAndDeleteHandlersRequireOwner(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	expectGet(t, mock, storedTrip())
	if resp := doJSON(t, app, http.MethodPut, "/trips/"+tripID, bearer(t, strangerID), sampleTrip()); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on foreign update, got %d", resp.StatusCode)
	}

	expectGet(t, mock, storedTrip())
	if resp := doJSON(t, app, http.MethodDelete, "/trips/"+tripID, bearer(t, strangerID), nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on foreign delete, got %d", resp.StatusCode)
	}

	expectGet(t, mock, storedTrip())
	mock.ExpectExec(`DELETE FROM trips`).WithArgs(tripID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if resp := doJSON(t, app, http.MethodDelete, "/trips/"+tripID, bearer(t, ownerID), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on owner delete, got %d", resp.StatusCode)
	}
}

func TestUpdateStepHandler(t *testing.T) {
	mock := newMock(t)
	app := newTestApp(mock, &fakePhotos{})

	if resp := doJSON(t, app, http.MethodPatch, "/trips/"+tripID+"/steps/step-1", bearer(t, ownerID), map[string]any{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without completed, got %d", resp.StatusCode)
	}

	expectGet(t, mock, storedTrip())
	expectSave(mock, tripID, 1)
	resp := doJSON(t, app, http.MethodPatch, "/trips/"+tripID+"/steps/step-1", bearer(t, ownerID), map[string]bool{"completed": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("step status %d", resp.StatusCode)
	}
}

func photoRequest(t *testing.T, path, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile(photoField, "summit.png")
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", token)
	return req
}

func TestUploadPhotoHandler(t *testing.T) {
	mock := newMock(t)
	photos := &fakePhotos{}
	app := newTestApp(mock, photos)

	expectGet(t, mock, storedTrip())
	expectGet(t, mock, storedTrip())
	expectSave(mock, tripID, 1)
	resp, err := app.Test(photoRequest(t, "/trips/"+tripID+"/photos", bearer(t, ownerID)))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %v %v", resp.StatusCode, err)
	}
	if len(photos.saved) != 1 {
		t.Fatalf("expected one saved photo")
	}

	expectGet(t, mock, storedTrip())
	resp, _ = app.Test(photoRequest(t, "/trips/"+tripID+"/photos", bearer(t, strangerID)))
	if resp.StatusCode != http.StatusForbidden || len(photos.saved) != 1 {
		t.Fatalf("non-owner upload must be rejected before storing, got %d", resp.StatusCode)
	}

	photos.err = apperrors.FileUpload("File type text/plain is not allowed")
	expectGet(t, mock, storedTrip())
	resp, _ = app.Test(photoRequest(t, "/trips/"+tripID+"/photos", bearer(t, ownerID)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for rejected file, got %d", resp.StatusCode)
	}
}

func TestUploadPhotoRemovesFileWhenSaveFails(t *testing.T) {
	mock := newMock(t)
	photos := &fakePhotos{}
	app := newTestApp(mock, photos)

	expectGet(t, mock, storedTrip())
	expectGet(t, mock, storedTrip())
	mock.ExpectQuery(`UPDATE trips`).
		WithArgs(tripID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("conn reset"))

	resp, _ := app.Test(photoRequest(t, "/trips/"+tripID+"/photos", bearer(t, ownerID)))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if len(photos.removed) != 1 || photos.removed[0] != photos.saved[0] {
		t.Fatalf("expected orphaned upload to be removed")
	}
}

package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/db"
	"github.com/agehcx/hiking-app-sub000/internal/validation"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	notFoundMessage  = "Trip not found"
	forbiddenMessage = "You do not have permission to modify this trip"
	defaultPageSize  = 20
	maxPageSize      = 100
)

var tripColumns = []string{
	"id", "user_id", "status", "is_public", "start_date", "end_date", "tags", "doc", "version", "created_at", "updated_at",
}

var (
	psql  = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	nowFn = time.Now
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// ListFilter narrows trip listings. OwnerID and PublicOnly select the scope.
type ListFilter struct {
	OwnerID    string
	PublicOnly bool
	Status     string
	Tag        string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type ReviewInput struct {
	Rating  int      `json:"rating"`
	Comment string   `json:"comment"`
	Photos  []string `json:"photos"`
}

func (s *Service) CreateTrip(ctx context.Context, ownerID string, input Trip) (Trip, error) {
	input.ID = uuid.NewString()
	input.UserID = ownerID
	input.Reviews = []Review{}
	input.Version = 0
	now := nowFn().UTC()
	input.CreatedAt, input.UpdatedAt = now, now

	if err := prepare(&input); err != nil {
		return Trip{}, err
	}
	doc, err := input.document()
	if err != nil {
		return Trip{}, apperrors.Internal(err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO trips (id, user_id, status, is_public, start_date, end_date, tags, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, input.ID, input.UserID, input.Status, input.Sharing.IsPublic, input.Dates.StartDate, input.Dates.EndDate,
		input.Tags, doc, input.CreatedAt, input.UpdatedAt)
	if err != nil {
		return Trip{}, apperrors.FromDB(err, notFoundMessage)
	}
	return input, nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (Trip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Trip{}, apperrors.Cast("Invalid ID format").WithField("id")
	}
	query, args, err := psql.Select(tripColumns...).From("trips").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Trip{}, apperrors.Internal(err)
	}
	t, err := scanTrip(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Trip{}, apperrors.FromDB(err, notFoundMessage)
	}
	return t, nil
}

// GetVisibleTrip loads a trip the caller may read: public, owned or joined.
func (s *Service) GetVisibleTrip(ctx context.Context, id, callerID string) (Trip, error) {
	t, err := s.GetTrip(ctx, id)
	if err != nil {
		return Trip{}, err
	}
	if !t.CanView(callerID) {
		return Trip{}, apperrors.Forbidden("You do not have access to this trip")
	}
	return t, nil
}

// UpdateTrip replaces the mutable body. Ownership, reviews and timestamps
// are kept from the stored trip. The participant roster comes from the body,
// but stored join times survive and newly confirmed members are stamped.
func (s *Service) UpdateTrip(ctx context.Context, id, callerID string, next Trip) (Trip, error) {
	current, err := s.ownedTrip(ctx, id, callerID)
	if err != nil {
		return Trip{}, err
	}
	next.ID = current.ID
	next.UserID = current.UserID
	next.Reviews = current.Reviews
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version
	next.Participants = carryJoinTimes(current.Participants, next.Participants, nowFn().UTC())

	if err := prepare(&next); err != nil {
		return Trip{}, err
	}
	return s.save(ctx, next)
}

func (s *Service) DeleteTrip(ctx context.Context, id, callerID string) error {
	if _, err := s.ownedTrip(ctx, id, callerID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id=$1`, id)
	if err != nil {
		return apperrors.FromDB(err, notFoundMessage)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(notFoundMessage)
	}
	return nil
}

func (s *Service) ListTrips(ctx context.Context, f ListFilter) ([]Trip, error) {
	q := psql.Select(tripColumns...).From("trips")
	if f.OwnerID != "" {
		q = q.Where(squirrel.Eq{"user_id": f.OwnerID})
	}
	if f.PublicOnly {
		q = q.Where(squirrel.Eq{"is_public": true})
	}
	if f.Status != "" {
		if err := validation.Var("status", f.Status, "oneof=planning confirmed active completed cancelled"); err != nil {
			return nil, err
		}
		q = q.Where(squirrel.Eq{"status": f.Status})
	}
	if f.Tag != "" {
		q = q.Where("? = ANY(tags)", normalizeTag(f.Tag))
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"start_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"end_date": *f.To})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query, args, err := q.OrderBy("created_at DESC").Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.FromDB(err, notFoundMessage)
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, apperrors.FromDB(err, notFoundMessage)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromDB(err, notFoundMessage)
	}
	return trips, nil
}

// AddReview records one review per user on trips that accept ratings.
func (s *Service) AddReview(ctx context.Context, tripID, callerID string, input ReviewInput) (Trip, error) {
	t, err := s.GetVisibleTrip(ctx, tripID, callerID)
	if err != nil {
		return Trip{}, err
	}
	if !t.Sharing.AllowRatings {
		return Trip{}, apperrors.Forbidden("Ratings are disabled for this trip")
	}
	for _, r := range t.Reviews {
		if r.UserID == callerID {
			return Trip{}, apperrors.Conflict("userId", "You have already reviewed this trip")
		}
	}

	review := Review{
		UserID:    callerID,
		Rating:    input.Rating,
		Comment:   strings.TrimSpace(input.Comment),
		Photos:    input.Photos,
		CreatedAt: nowFn().UTC(),
	}
	if err := validation.Struct(review); err != nil {
		return Trip{}, err
	}
	t.Reviews = append(t.Reviews, review)
	return s.save(ctx, t)
}

func (s *Service) AddParticipant(ctx context.Context, tripID, callerID string, p Participant) (Trip, error) {
	t, err := s.ownedTrip(ctx, tripID, callerID)
	if err != nil {
		return Trip{}, err
	}
	if t.IsParticipant(p.UserID) {
		return Trip{}, apperrors.Conflict("userId", "User is already a participant")
	}
	applyParticipantDefaults(&p)
	stampJoin(&p, nowFn().UTC())
	if err := validation.Struct(p); err != nil {
		return Trip{}, err
	}
	t.Participants = append(t.Participants, p)
	return s.save(ctx, t)
}

func stampJoin(p *Participant, now time.Time) {
	if p.Status == "confirmed" && p.JoinedAt == nil {
		at := now
		p.JoinedAt = &at
	}
}

// carryJoinTimes keeps the stored JoinedAt of members that remain on the
// roster and stamps those confirmed without one.
func carryJoinTimes(stored, next []Participant, now time.Time) []Participant {
	joined := make(map[string]*time.Time, len(stored))
	for _, p := range stored {
		if p.JoinedAt != nil {
			joined[p.UserID] = p.JoinedAt
		}
	}
	out := make([]Participant, 0, len(next))
	for _, p := range next {
		applyParticipantDefaults(&p)
		if at, ok := joined[p.UserID]; ok {
			p.JoinedAt = at
		}
		stampJoin(&p, now)
		out = append(out, p)
	}
	return out
}

func (s *Service) UpdateStep(ctx context.Context, tripID, callerID, stepID string, completed bool) (Trip, error) {
	t, err := s.ownedTrip(ctx, tripID, callerID)
	if err != nil {
		return Trip{}, err
	}
	found := false
	for i := range t.Planning.Steps {
		if t.Planning.Steps[i].ID == stepID {
			t.Planning.Steps[i].Completed = completed
			found = true
			break
		}
	}
	if !found {
		return Trip{}, apperrors.NotFound("Step not found")
	}
	return s.save(ctx, t)
}

func (s *Service) AddPhoto(ctx context.Context, tripID, callerID, url string) (Trip, error) {
	t, err := s.ownedTrip(ctx, tripID, callerID)
	if err != nil {
		return Trip{}, err
	}
	t.Photos = append(t.Photos, url)
	return s.save(ctx, t)
}

// CheckOwner fails unless callerID owns the trip.
func (s *Service) CheckOwner(ctx context.Context, tripID, callerID string) error {
	_, err := s.ownedTrip(ctx, tripID, callerID)
	return err
}

func (s *Service) ownedTrip(ctx context.Context, id, callerID string) (Trip, error) {
	t, err := s.GetTrip(ctx, id)
	if err != nil {
		return Trip{}, err
	}
	if !t.IsOwner(callerID) {
		return Trip{}, apperrors.Forbidden(forbiddenMessage)
	}
	return t, nil
}

// save overwrites the stored trip. The version is bumped but not compared,
// so concurrent writers resolve last-write-wins.
func (s *Service) save(ctx context.Context, t Trip) (Trip, error) {
	t.UpdatedAt = nowFn().UTC()
	doc, err := t.document()
	if err != nil {
		return Trip{}, apperrors.Internal(err)
	}

	err = s.db.QueryRow(ctx, `
		UPDATE trips
		SET status=$2, is_public=$3, start_date=$4, end_date=$5, tags=$6, doc=$7,
			version=version+1, updated_at=$8
		WHERE id=$1
		RETURNING version
	`, t.ID, t.Status, t.Sharing.IsPublic, t.Dates.StartDate, t.Dates.EndDate, t.Tags, doc, t.UpdatedAt).Scan(&t.Version)
	if err != nil {
		return Trip{}, apperrors.FromDB(err, notFoundMessage)
	}
	return t, nil
}

// prepare fills defaults, derives the stored duration and validates.
func prepare(t *Trip) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Status == "" {
		t.Status = StatusPlanning
	}
	if t.Map.Provider == "" {
		t.Map.Provider = "google"
	}
	if t.Planning.Budget.Currency == "" {
		t.Planning.Budget.Currency = "USD"
	}
	t.Planning.Budget.Currency = strings.ToUpper(t.Planning.Budget.Currency)

	for i := range t.Trail.Waypoints {
		if t.Trail.Waypoints[i].Type == "" {
			t.Trail.Waypoints[i].Type = "checkpoint"
		}
	}
	for i := range t.Planning.Steps {
		step := &t.Planning.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		if step.Category == "" {
			step.Category = "preparation"
		}
		if step.Priority == "" {
			step.Priority = "medium"
		}
	}
	for i := range t.Planning.Gear {
		if t.Planning.Gear[i].Category == "" {
			t.Planning.Gear[i].Category = "other"
		}
	}
	for i := range t.Weather.Forecast {
		if t.Weather.Forecast[i].Temperature.Unit == "" {
			t.Weather.Forecast[i].Temperature.Unit = "celsius"
		}
	}
	for i := range t.Participants {
		applyParticipantDefaults(&t.Participants[i])
	}
	t.Tags = normalizeTags(t.Tags)
	if t.Photos == nil {
		t.Photos = []string{}
	}
	if t.Participants == nil {
		t.Participants = []Participant{}
	}
	if t.Reviews == nil {
		t.Reviews = []Review{}
	}

	t.Dates.Duration = max(1, t.DurationDays())
	return validation.Struct(*t)
}

func applyParticipantDefaults(p *Participant) {
	if p.Role == "" {
		p.Role = "participant"
	}
	if p.Status == "" {
		p.Status = "invited"
	}
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = normalizeTag(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func scanTrip(row pgx.Row) (Trip, error) {
	var (
		t                    Trip
		id, userID, status   string
		isPublic             bool
		startDate, endDate   time.Time
		tags                 []string
		doc                  []byte
		version              int
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &userID, &status, &isPublic, &startDate, &endDate, &tags, &doc, &version, &createdAt, &updatedAt); err != nil {
		return Trip{}, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &t); err != nil {
			return Trip{}, fmt.Errorf("decode trip %s: %w", id, err)
		}
	}

	// Indexed columns are authoritative over the document copy.
	t.ID, t.UserID, t.Status = id, userID, status
	t.Sharing.IsPublic = isPublic
	t.Dates.StartDate, t.Dates.EndDate = startDate, endDate
	t.Tags = tags
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.Version = version
	t.CreatedAt, t.UpdatedAt = createdAt, updatedAt
	return t, nil
}

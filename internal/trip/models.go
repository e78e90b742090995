package trip

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	StatusPlanning  = "planning"
	StatusConfirmed = "confirmed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Trip struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Title        string        `json:"title" validate:"required,max=200"`
	Description  string        `json:"description" validate:"max=2000"`
	Destination  Destination   `json:"destination"`
	Dates        Dates         `json:"dates"`
	Difficulty   string        `json:"difficulty" validate:"required,oneof=easy moderate hard"`
	TravelStyle  string        `json:"travelStyle" validate:"required,oneof=adventure rest dating family solo"`
	Trail        Trail         `json:"trail"`
	Map          MapInfo       `json:"map"`
	Planning     Planning      `json:"planning"`
	Sharing      Sharing       `json:"sharing"`
	Weather      Weather       `json:"weather"`
	Status       string        `json:"status" validate:"oneof=planning confirmed active completed cancelled"`
	Participants []Participant `json:"participants" validate:"dive"`
	Reviews      []Review      `json:"reviews" validate:"dive"`
	Photos       []string      `json:"photos"`
	Tags         []string      `json:"tags"`
	Version      int           `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type LatLng struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Coordinates is a point that must be given explicitly; 0,0 is a real
// location and is not treated as missing.
type Coordinates struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type Destination struct {
	Name        string      `json:"name" validate:"required"`
	Country     string      `json:"country" validate:"required"`
	Region      string      `json:"region,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
}

// Dates.Duration is always derived from the span on write.
type Dates struct {
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required,gtefield=StartDate"`
	Duration  int       `json:"duration" validate:"gte=1"`
}

func (d *Dates) UnmarshalJSON(data []byte) error {
	type plain Dates
	aux := struct {
		*plain
		StartDate json.RawMessage `json:"startDate"`
		EndDate   json.RawMessage `json:"endDate"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := setDate(aux.StartDate, "startDate", &d.StartDate); err != nil {
		return err
	}
	return setDate(aux.EndDate, "endDate", &d.EndDate)
}

type Trail struct {
	Name          string     `json:"name" validate:"required"`
	Type          string     `json:"type" validate:"required,oneof=hiking climbing cycling walking backpacking"`
	Distance      float64    `json:"distance" validate:"gte=0"`
	ElevationGain float64    `json:"elevationGain" validate:"gte=0"`
	EstimatedTime float64    `json:"estimatedTime" validate:"gte=0"`
	Waypoints     []Waypoint `json:"waypoints" validate:"dive"`
}

type Waypoint struct {
	Name        string   `json:"name"`
	Coordinates LatLng   `json:"coordinates"`
	Elevation   *float64 `json:"elevation,omitempty"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type" validate:"oneof=start checkpoint landmark rest finish"`
}

type MapInfo struct {
	Provider    string `json:"provider" validate:"oneof=google mapbox openstreetmap"`
	Bounds      Bounds `json:"bounds"`
	Zoom        int    `json:"zoom" validate:"gte=0,lte=22"`
	CenterPoint LatLng `json:"centerPoint"`
	Polyline    string `json:"polyline,omitempty"`
}

type Bounds struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

type Planning struct {
	Steps  []Step     `json:"steps" validate:"dive"`
	Budget Budget     `json:"budget"`
	Gear   []GearItem `json:"gear" validate:"dive"`
}

type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Category    string     `json:"category" validate:"oneof=preparation booking packing travel activity"`
	Priority    string     `json:"priority" validate:"oneof=low medium high"`
}

func (st *Step) UnmarshalJSON(data []byte) error {
	type plain Step
	aux := struct {
		*plain
		DueDate json.RawMessage `json:"dueDate"`
	}{plain: (*plain)(st)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DueDate == nil {
		return nil
	}
	var err error
	st.DueDate, err = decodeDate(aux.DueDate, "dueDate")
	return err
}

type Budget struct {
	Total     float64         `json:"total" validate:"gte=0"`
	Currency  string          `json:"currency" validate:"len=3"`
	Breakdown BudgetBreakdown `json:"breakdown"`
}

type BudgetBreakdown struct {
	Transportation float64 `json:"transportation" validate:"gte=0"`
	Accommodation  float64 `json:"accommodation" validate:"gte=0"`
	Food           float64 `json:"food" validate:"gte=0"`
	Equipment      float64 `json:"equipment" validate:"gte=0"`
	Activities     float64 `json:"activities" validate:"gte=0"`
	Other          float64 `json:"other" validate:"gte=0"`
}

type GearItem struct {
	Item      string `json:"item" validate:"required"`
	Category  string `json:"category" validate:"oneof=clothing equipment safety food other"`
	Packed    bool   `json:"packed"`
	Essential bool   `json:"essential"`
}

type Sharing struct {
	IsPublic         bool         `json:"isPublic"`
	AllowComments    bool         `json:"allowComments"`
	AllowRatings     bool         `json:"allowRatings"`
	ShareWithFriends bool         `json:"shareWithFriends"`
	SocialLinks      *SocialLinks `json:"socialLinks,omitempty"`
}

type SocialLinks struct {
	Instagram string `json:"instagram,omitempty" validate:"omitempty,url"`
	Facebook  string `json:"facebook,omitempty" validate:"omitempty,url"`
	Strava    string `json:"strava,omitempty" validate:"omitempty,url"`
}

// Weather holds snapshots taken at planning time.
type Weather struct {
	Forecast []Forecast `json:"forecast,omitempty" validate:"dive"`
	Alerts   []Alert    `json:"alerts,omitempty" validate:"dive"`
}

type Forecast struct {
	Date          time.Time   `json:"date"`
	Temperature   Temperature `json:"temperature"`
	Conditions    string      `json:"conditions"`
	Precipitation float64     `json:"precipitation"`
	WindSpeed     float64     `json:"windSpeed"`
	Humidity      float64     `json:"humidity" validate:"gte=0,lte=100"`
}

type Temperature struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit" validate:"oneof=celsius fahrenheit"`
}

type Alert struct {
	Type        string    `json:"type" validate:"omitempty,oneof=warning watch advisory"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity" validate:"omitempty,oneof=minor moderate severe extreme"`
	ValidFrom   time.Time `json:"validFrom"`
	ValidTo     time.Time `json:"validTo"`
}

type Participant struct {
	UserID   string     `json:"userId" validate:"required,uuid"`
	Role     string     `json:"role" validate:"oneof=organizer participant guide"`
	Status   string     `json:"status" validate:"oneof=invited confirmed declined"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	type plain Participant
	aux := struct {
		*plain
		JoinedAt json.RawMessage `json:"joinedAt"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.JoinedAt == nil {
		return nil
	}
	var err error
	p.JoinedAt, err = decodeDate(aux.JoinedAt, "joinedAt")
	return err
}

type Review struct {
	UserID    string    `json:"userId" validate:"required"`
	Rating    int       `json:"rating" validate:"gte=1,lte=5"`
	Comment   string    `json:"comment,omitempty" validate:"max=1000"`
	Photos    []string  `json:"photos,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// dateLayouts are the accepted forms for trip dates, tried in order.
var dateLayouts = []string{time.RFC3339, time.DateOnly}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// decodeDate reads a JSON string holding an RFC 3339 timestamp or a
// YYYY-MM-DD date. JSON null decodes to nil.
func decodeDate(raw json.RawMessage, field string) (*time.Time, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if s == nil {
		return nil, nil
	}
	t, ok := parseDate(*s)
	if !ok {
		return nil, fmt.Errorf("%s: invalid date %q", field, *s)
	}
	return &t, nil
}

// setDate leaves dst untouched when the key was absent.
func setDate(raw json.RawMessage, field string, dst *time.Time) error {
	if raw == nil {
		return nil
	}
	t, err := decodeDate(raw, field)
	if err != nil {
		return err
	}
	if t == nil {
		*dst = time.Time{}
		return nil
	}
	*dst = *t
	return nil
}

// Draft returns a trip carrying every schema default. Request bodies are
// decoded on top of it so omitted fields keep their defaults.
func Draft() Trip {
	return Trip{
		Status: StatusPlanning,
		Map:    MapInfo{Provider: "google", Zoom: 10},
		Planning: Planning{
			Steps:  []Step{},
			Budget: Budget{Currency: "USD"},
			Gear:   []GearItem{},
		},
		Sharing: Sharing{
			AllowComments: true,
			AllowRatings:  true,
		},
		Trail:        Trail{Waypoints: []Waypoint{}},
		Participants: []Participant{},
		Reviews:      []Review{},
		Photos:       []string{},
		Tags:         []string{},
	}
}

// DurationDays is the date span rounded up to whole days.
func (t Trip) DurationDays() int {
	span := t.Dates.EndDate.Sub(t.Dates.StartDate)
	if span <= 0 {
		return 0
	}
	return int(math.Ceil(span.Hours() / 24))
}

// CompletionPercentage is the rounded share of completed planning steps.
func (t Trip) CompletionPercentage() int {
	total := len(t.Planning.Steps)
	if total == 0 {
		return 0
	}
	done := 0
	for _, s := range t.Planning.Steps {
		if s.Completed {
			done++
		}
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}

func (t Trip) IsOwner(userID string) bool {
	return userID != "" && t.UserID == userID
}

func (t Trip) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range t.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// CanView reports whether userID ("" for anonymous) may read the trip.
func (t Trip) CanView(userID string) bool {
	return t.Sharing.IsPublic || t.IsOwner(userID) || t.IsParticipant(userID)
}

// MarshalJSON adds the derived durationDays and completionPercentage.
func (t Trip) MarshalJSON() ([]byte, error) {
	type view Trip
	return json.Marshal(struct {
		view
		DurationDays         int `json:"durationDays"`
		CompletionPercentage int `json:"completionPercentage"`
	}{view(t), t.DurationDays(), t.CompletionPercentage()})
}

// document is the stored body, without the derived fields.
func (t Trip) document() ([]byte, error) {
	type view Trip
	return json.Marshal(view(t))
}

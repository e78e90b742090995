package user

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
	ExperienceExpert       = "expert"
)

type User struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Username       string        `json:"username"`
	PasswordHash   string        `json:"-"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	ProfilePicture *string       `json:"profilePicture"`
	Bio            string        `json:"bio"`
	Experience     string        `json:"experience"`
	Preferences    Preferences   `json:"preferences"`
	Stats          Stats         `json:"stats"`
	Achievements   []Achievement `json:"achievements"`
	Location       *Location     `json:"location,omitempty"`
	IsActive       bool          `json:"isActive"`
	LastLogin      *time.Time    `json:"lastLogin"`
	EmailVerified  bool          `json:"emailVerified"`
	Version        int           `json:"-"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type Preferences struct {
	TravelStyle   string        `json:"travelStyle" validate:"oneof=adventure rest dating family solo"`
	Difficulty    string        `json:"difficulty" validate:"oneof=easy moderate hard"`
	Interests     []string      `json:"interests"`
	Notifications Notifications `json:"notifications"`
}

type Notifications struct {
	Email         bool `json:"email"`
	Push          bool `json:"push"`
	TripReminders bool `json:"tripReminders"`
	WeatherAlerts bool `json:"weatherAlerts"`
}

type Stats struct {
	TotalDistance      float64 `json:"totalDistance"`
	TrailsCompleted    int     `json:"trailsCompleted"`
	AdventurePoints    int     `json:"adventurePoints"`
	TotalElevationGain float64 `json:"totalElevationGain"`
	AverageRating      float64 `json:"averageRating"`
	ReviewsCount       int     `json:"reviewsCount"`
}

type Achievement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	UnlockedAt  time.Time `json:"unlockedAt"`
	Progress    int       `json:"progress" validate:"gte=0,lte=100"`
}

type Location struct {
	Country     string       `json:"country"`
	City        string       `json:"city"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Profile is the projection returned right after registration.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	FullName      string    `json:"fullName"`
	Experience    string    `json:"experience"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicProfile is what other users may see.
type PublicProfile struct {
	ID             string        `json:"id"`
	Username       string        `json:"username"`
	FullName       string        `json:"fullName"`
	ProfilePicture *string       `json:"profilePicture"`
	Bio            string        `json:"bio"`
	Experience     string        `json:"experience"`
	Stats          Stats         `json:"stats"`
	Achievements   []Achievement `json:"achievements"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// New builds an active account with default preferences and zeroed stats.
// Identity fields are normalized.
func New(email, username, passwordHash, firstName, lastName, experience string) User {
	if experience == "" {
		experience = ExperienceBeginner
	}
	return User{
		Email:        NormalizeEmail(email),
		Username:     NormalizeUsername(username),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Experience:   experience,
		Preferences: Preferences{
			TravelStyle: "adventure",
			Difficulty:  "moderate",
			Interests:   []string{},
			Notifications: Notifications{
				Email:         true,
				Push:          true,
				TripReminders: true,
				WeatherAlerts: true,
			},
		},
		Achievements: []Achievement{},
		Location:     &Location{},
		IsActive:     true,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		FullName:      u.FullName(),
		Experience:    u.Experience,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName(),
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		Experience:     u.Experience,
		Stats:          u.Stats,
		Achievements:   u.Achievements,
		CreatedAt:      u.CreatedAt,
	}
}

// MarshalJSON adds the derived fullName.
func (u User) MarshalJSON() ([]byte, error) {
	type view User
	return json.Marshal(struct {
		view
		FullName string `json:"fullName"`
	}{view(u), u.FullName()})
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactUpdateInterval debounces runner last-contact writes: a runner row is
// touched at most once per window no matter how often the runner calls in.
const ContactUpdateInterval = 5 * time.Minute

// GenerateRegistrationToken builds a new pre-shared registration token
func GenerateRegistrationToken() string {
	return "ptrrt-" + uuid.NewString()
}

// GenerateRunnerToken builds the credential issued to a runner on registration
func GenerateRunnerToken() string {
	return "ptrt-" + uuid.NewString()
}

// GenerateProcessingJobToken builds the ephemeral credential bound to a job
// while a runner processes it
func GenerateProcessingJobToken() string {
	return "ptrjt-" + uuid.NewString()
}

// RunnerRegistrationToken is a pre-shared credential allowing runners to register
type RunnerRegistrationToken struct {
	ID                uuid.UUID `json:"id"`
	RegistrationToken string    `json:"registrationToken"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Runner represents a registered remote worker
type Runner struct {
	ID                  uuid.UUID `json:"id"`
	RunnerToken         string    `json:"runnerToken"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	LastContact         time.Time `json:"lastContact"`
	IP                  string    `json:"ip"`
	RegistrationTokenID uuid.UUID `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// TouchContact updates the last-contact bookkeeping of the runner. It returns
// false when the previous contact is too recent and nothing should be persisted.
func (r *Runner) TouchContact(ip string, now time.Time) bool {
	if now.Sub(r.LastContact) < ContactUpdateInterval {
		return false
	}
	r.LastContact = now
	r.IP = ip
	return true
}

package models

import (
	"sort"
	"time"
)

// Password change methods recorded in the change history
const (
	PasswordChangeMethodChange   = "change"
	PasswordChangeMethodRecovery = "knowledge_recovery"
)

// UserSecurityProfile holds the credential policy state for one user
type UserSecurityProfile struct {
	UserID                 string             `json:"user_id"`
	SecurityQuestions      []SecurityQuestion `json:"security_questions"`
	LastPasswordChange     *time.Time         `json:"last_password_change,omitempty"`
	PasswordChangeHistory  []PasswordChange   `json:"password_change_history"`
	PasswordHashes         []string           `json:"-"`
	LastLoginAttempt       *time.Time         `json:"last_login_attempt,omitempty"`
	LastSuccessfulLogin    *time.Time         `json:"last_successful_login,omitempty"`
	AccountRecoveryEnabled bool               `json:"account_recovery_enabled"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// NewUserSecurityProfile returns an empty profile for a user
func NewUserSecurityProfile(userID string) *UserSecurityProfile {
	return &UserSecurityProfile{
		UserID:                userID,
		SecurityQuestions:     []SecurityQuestion{},
		PasswordChangeHistory: []PasswordChange{},
		PasswordHashes:        []string{},
	}
}

// PushPasswordHash front-inserts a hash and drops the oldest beyond limit
func (p *UserSecurityProfile) PushPasswordHash(hash string, limit int) {
	hashes := append([]string{hash}, p.PasswordHashes...)
	if len(hashes) > limit {
		hashes = hashes[:limit]
	}
	p.PasswordHashes = hashes
}

// AppendPasswordChange appends a change entry and drops the oldest beyond limit
func (p *UserSecurityProfile) AppendPasswordChange(change PasswordChange, limit int) {
	history := append(p.PasswordChangeHistory, change)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	p.PasswordChangeHistory = history
}

// QuestionByID finds a stored question
func (p *UserSecurityProfile) QuestionByID(id string) (SecurityQuestion, bool) {
	for _, q := range p.SecurityQuestions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return SecurityQuestion{}, false
}

// PasswordChange is one entry in a profile's change history
type PasswordChange struct {
	ChangedAt time.Time `json:"changed_at"`
	Method    string    `json:"method"`
}

// SecurityQuestion is a stored knowledge-recovery question with its hashed answer
type SecurityQuestion struct {
	QuestionID   string    `json:"question_id"`
	Question     string    `json:"question"`
	HashedAnswer string    `json:"hashed_answer"`
	CreatedAt    time.Time `json:"created_at"`
}

// SecurityAnswer is a raw answer submitted by a user
type SecurityAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
}

// SecurityQuestionPrompt is a question shown to the user without its answer
type SecurityQuestionPrompt struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
}

// PasswordChangeEligibility is the result of the minimum-age check
type PasswordChangeEligibility struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	HoursRemaining int    `json:"hours_remaining,omitempty"`
}

// SecurityQuestionCatalog is the fixed set users choose their questions from
var SecurityQuestionCatalog = map[string]string{
	"q1": "What was the name of your first pet?",
	"q2": "What was the name of your elementary school?",
	"q3": "What was the make and model of your first car?",
	"q4": "In what city did your parents meet?",
	"q5": "What is the middle name of your oldest sibling?",
	"q6": "What was the street you grew up on?",
	"q7": "What was the name of your first veterinarian?",
	"q8": "What was your childhood nickname?",
}

// SecurityQuestionPrompts lists the catalog ordered by question ID
func SecurityQuestionPrompts() []SecurityQuestionPrompt {
	prompts := make([]SecurityQuestionPrompt, 0, len(SecurityQuestionCatalog))
	for id, q := range SecurityQuestionCatalog {
		prompts = append(prompts, SecurityQuestionPrompt{QuestionID: id, Question: q})
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].QuestionID < prompts[j].QuestionID })
	return prompts
}

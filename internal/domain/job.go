package domain

import "strings"

// JobType identifies which email a job sends. The string values are the
// wire form stored in the broker and accepted by the API.
type JobType string

const (
	JobWelcome         JobType = "welcome"
	JobResetPassword   JobType = "resetPassword"
	JobPasswordChanged JobType = "passwordChanged"
)

func (t JobType) IsValid() bool {
	switch t {
	case JobWelcome, JobResetPassword, JobPasswordChanged:
		return true
	}
	return false
}

// Payload carries the fields of every job kind. Which of them are required
// depends on the job type; see Decode.
type Payload struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	ResetToken string `json:"resetToken,omitempty"`
}

// EmailJob is the untyped wire form of a job. Type is a plain string so that
// records written by other producers with an unknown type can still be
// decoded and rejected with UnknownJobTypeError.
type EmailJob struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Job is the typed form of an EmailJob. Exactly one of WelcomeJob,
// ResetPasswordJob and PasswordChangedJob implements it.
type Job interface {
	Kind() JobType
	Recipient() string
	isJob()
}

type WelcomeJob struct {
	Email string
	Name  string
}

type ResetPasswordJob struct {
	Email string
	Token string
}

type PasswordChangedJob struct {
	Email string
	Name  string
}

func (WelcomeJob) Kind() JobType         { return JobWelcome }
func (ResetPasswordJob) Kind() JobType   { return JobResetPassword }
func (PasswordChangedJob) Kind() JobType { return JobPasswordChanged }

func (j WelcomeJob) Recipient() string         { return j.Email }
func (j ResetPasswordJob) Recipient() string   { return j.Email }
func (j PasswordChangedJob) Recipient() string { return j.Email }

func (WelcomeJob) isJob()         {}
func (ResetPasswordJob) isJob()   {}
func (PasswordChangedJob) isJob() {}

// NewWelcomeJob returns a welcome job. name may be empty.
func NewWelcomeJob(email, name string) (WelcomeJob, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return WelcomeJob{}, NewValidationError("email", "email required")
	}
	return WelcomeJob{Email: email, Name: name}, nil
}

// NewResetPasswordJob returns a reset-password job. Both fields are required.
func NewResetPasswordJob(email, token string) (ResetPasswordJob, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return ResetPasswordJob{}, NewValidationError("email", "email required")
	}
	if token == "" {
		return ResetPasswordJob{}, NewValidationError("resetToken", "reset token required")
	}
	return ResetPasswordJob{Email: email, Token: token}, nil
}

// NewPasswordChangedJob returns a password-changed job. name may be empty.
func NewPasswordChangedJob(email, name string) (PasswordChangedJob, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return PasswordChangedJob{}, NewValidationError("email", "email required")
	}
	return PasswordChangedJob{Email: email, Name: name}, nil
}

// Decode converts the wire form into its typed variant, applying the same
// checks as the constructors.
func Decode(j EmailJob) (Job, error) {
	switch JobType(j.Type) {
	case JobWelcome:
		return NewWelcomeJob(j.Payload.Email, j.Payload.Name)
	case JobResetPassword:
		return NewResetPasswordJob(j.Payload.Email, j.Payload.ResetToken)
	case JobPasswordChanged:
		return NewPasswordChangedJob(j.Payload.Email, j.Payload.Name)
	default:
		return nil, &UnknownJobTypeError{Type: j.Type}
	}
}

// Encode converts a typed job back into its wire form.
func Encode(j Job) EmailJob {
	switch v := j.(type) {
	case WelcomeJob:
		return EmailJob{Type: string(JobWelcome), Payload: Payload{Email: v.Email, Name: v.Name}}
	case ResetPasswordJob:
		return EmailJob{Type: string(JobResetPassword), Payload: Payload{Email: v.Email, ResetToken: v.Token}}
	case PasswordChangedJob:
		return EmailJob{Type: string(JobPasswordChanged), Payload: Payload{Email: v.Email, Name: v.Name}}
	}
	return EmailJob{}
}

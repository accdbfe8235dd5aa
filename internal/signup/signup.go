// Package signup validates waitlist submissions and forwards them to the
// form relay. Relay failures never reach the submitter.
package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"upwrdfin/internal/metrics"
	"upwrdfin/logger"
)

const defaultTimeout = 10 * time.Second

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{6,19}$`)

// Payload is the waitlist form.
type Payload struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Mobile       string `json:"mobile" validate:"required,phone"`
	KeepNotified bool   `json:"keepNotified"`
}

// Submission is what the relay receives.
type Submission struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAt"`
	Payload
}

// FieldError describes one rejected field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every rejected field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Fields[0].Field, e.Fields[0].Rule)
}

// Relay is safe for concurrent use.
type Relay struct {
	url      string
	client   *http.Client
	validate *validator.Validate
	policy   *bluemonday.Policy
	now      func() time.Time
	baseLog  *logger.Log
	log      *logger.Entry
}

// NewRelay posts to url. An empty url keeps submissions local: they are
// validated and logged only.
func NewRelay(url string, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	base := logger.GetLogger()
	return &Relay{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		validate: v,
		policy:   bluemonday.StrictPolicy(),
		now:      time.Now,
		baseLog:  base,
		log:      base.WithComponent("signup"),
	}
}

// Clean trims every field and strips markup from the names.
func (r *Relay) Clean(p Payload) Payload {
	p.FirstName = strings.TrimSpace(r.policy.Sanitize(p.FirstName))
	p.LastName = strings.TrimSpace(r.policy.Sanitize(p.LastName))
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Mobile = strings.TrimSpace(p.Mobile)
	return p
}

// Validate returns a *ValidationError when p is not acceptable.
func (r *Relay) Validate(p Payload) error {
	err := r.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// Submit validates p and forwards it. Only validation failures are returned;
// relay failures are logged and counted.
func (r *Relay) Submit(ctx context.Context, p Payload) (Submission, error) {
	p = r.Clean(p)
	if err := r.Validate(p); err != nil {
		return Submission{}, err
	}

	sub := Submission{
		ID:          uuid.NewString(),
		SubmittedAt: r.now().UTC(),
		Payload:     p,
	}

	if r.url == "" {
		r.log.WithField("submission_id", sub.ID).Info("signup captured; no relay configured")
		return sub, nil
	}

	err := r.post(ctx, sub)
	metrics.RecordSignup(r.baseLog, err)
	if err != nil {
		r.log.WithError(err).WithField("submission_id", sub.ID).Error("failed to relay signup")
		return sub, nil
	}
	r.log.WithField("submission_id", sub.ID).Info("signup relayed")
	return sub, nil
}

func (r *Relay) post(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned HTTP %d", resp.StatusCode)
	}
	return nil
}

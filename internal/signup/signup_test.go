package signup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() Payload {
	return Payload{
		FirstName:    "Ayesha",
		LastName:     "Khan",
		Email:        "Ayesha@Example.com ",
		Mobile:       "+92 300 1234567",
		KeepNotified: true,
	}
}

func TestValidate(t *testing.T) {
	r := NewRelay("", time.Second)

	tests := []struct {
		name   string
		mutate func(*Payload)
		field  string
	}{
		{"valid", func(*Payload) {}, ""},
		{"missing first name", func(p *Payload) { p.FirstName = "" }, "firstName"},
		{"bad email", func(p *Payload) { p.Email = "not-an-email" }, "email"},
		{"missing mobile", func(p *Payload) { p.Mobile = "" }, "mobile"},
		{"bad mobile", func(p *Payload) { p.Mobile = "call me" }, "mobile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := r.Validate(r.Clean(p))
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestCleanStripsMarkup(t *testing.T) {
	r := NewRelay("", time.Second)
	p := r.Clean(Payload{FirstName: " <b>Ali</b> ", Email: " A@B.CO "})
	assert.Equal(t, "Ali", p.FirstName)
	assert.Equal(t, "a@b.co", p.Email)
}

func TestSubmitRelaysPayload(t *testing.T) {
	received := make(chan Submission, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var sub Submission
		_ = json.NewDecoder(r.Body).Decode(&sub)
		received <- sub
	}))
	defer srv.Close()

	sub, err := NewRelay(srv.URL, time.Second).Submit(context.Background(), validPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)

	got := <-received
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "ayesha@example.com", got.Email)
	assert.True(t, got.KeepNotified)
}

func TestSubmitSwallowsRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sub, err := NewRelay(srv.URL, time.Second).Submit(context.Background(), validPayload())
	assert.NoError(t, err)
	assert.NotEmpty(t, sub.ID)

	sub, err = NewRelay("http://127.0.0.1:1/unreachable", 100*time.Millisecond).Submit(context.Background(), validPayload())
	assert.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
}

func TestSubmitRejectsInvalid(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	p := validPayload()
	p.Email = ""
	_, err := NewRelay(srv.URL, time.Second).Submit(context.Background(), p)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.False(t, called)
}

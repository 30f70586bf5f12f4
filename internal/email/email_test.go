package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hiring-api/internal/config"
)

func testMessage() Message {
	return Message{
		To:      "candidate@example.com",
		From:    "Hiring <no-reply@example.com>",
		Subject: "Application received",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
		Headers: map[string]string{
			HeaderIdempotencyKey: "5f0c1a8e-0000-4000-8000-000000000001",
			HeaderNotificationID: "5f0c1a8e-0000-4000-8000-000000000001",
		},
	}
}

func TestHTTPSenderDelivers(t *testing.T) {
	var got providerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "5f0c1a8e-0000-4000-8000-000000000001", r.Header.Get(HeaderIdempotencyKey))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", time.Second, 0)
	require.NoError(t, s.Send(context.Background(), testMessage()))

	assert.Equal(t, "candidate@example.com", got.To)
	assert.Equal(t, "Application received", got.Subject)
	assert.Equal(t, "Hi", got.Text)
}

func TestHTTPSenderRetriesProviderRejections(t *testing.T) {
	statuses := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusUnprocessableEntity,
		http.StatusLocked,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}
	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", status)
			}))
			defer srv.Close()

			err := NewHTTPSender(srv.URL, "", time.Second, 0).Send(context.Background(), testMessage())
			require.Error(t, err)
			assert.False(t, IsPermanent(err))
			assert.Contains(t, err.Error(), strconv.Itoa(status))
		})
	}
}

func TestBreakerOpensOnProviderRejections(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewBreakerSender(NewHTTPSender(srv.URL, "wrong", time.Second, 0), "test", 2, time.Minute, nil)
	for i := 0; i < 2; i++ {
		require.Error(t, s.Send(context.Background(), testMessage()))
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPSenderRejectsMalformedAddress(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	msg := testMessage()
	msg.To = "not-an-address"

	err := NewHTTPSender(srv.URL, "", time.Second, 0).Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestHTTPSenderHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewHTTPSender(srv.URL, "", 5*time.Second, 0).Send(ctx, testMessage())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifySMTP(t *testing.T) {
	assert.NoError(t, classifySMTP(nil))
	rejected := classifySMTP(&textproto.Error{Code: 550, Msg: "mailbox unavailable"})
	assert.False(t, IsPermanent(rejected))
	assert.Contains(t, rejected.Error(), "550")
	assert.False(t, IsPermanent(classifySMTP(&textproto.Error{Code: 451, Msg: "try again later"})))
	assert.False(t, IsPermanent(classifySMTP(errors.New("connection refused"))))
}

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(context.Context, Message) error {
	s.calls++
	return s.err
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	next := &stubSender{err: errors.New("connection reset")}
	s := NewBreakerSender(next, "test", 2, time.Minute, nil)
	ctx := context.Background()

	assert.Error(t, s.Send(ctx, testMessage()))
	assert.Error(t, s.Send(ctx, testMessage()))
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err := s.Send(ctx, testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 2, next.calls)
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	next := &stubSender{err: Permanent(errors.New("unknown mailbox"))}
	s := NewBreakerSender(next, "test", 2, time.Minute, nil)

	for i := 0; i < 5; i++ {
		err := s.Send(context.Background(), testMessage())
		assert.True(t, IsPermanent(err))
	}
	assert.Equal(t, gobreaker.StateClosed, s.State())
	assert.Equal(t, 5, next.calls)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("bad address")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("a.b+tag@example.co.uk"))
	assert.True(t, IsPermanent(ValidateAddress("")))
	assert.True(t, IsPermanent(ValidateAddress("missing-at.example.com")))
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(config.EmailConfig{Driver: "log", BreakerFailures: 3, BreakerTimeout: time.Second}, nil)
	require.NoError(t, err)
	require.IsType(t, &BreakerSender{}, s)
	assert.NoError(t, s.Send(context.Background(), testMessage()))

	_, err = New(config.EmailConfig{Driver: "pigeon"}, nil)
	assert.Error(t, err)
}

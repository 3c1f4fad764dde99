package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/stretchr/testify/require"
)

type capturedEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Bcc     []string `json:"bcc"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo any      `json:"reply_to"`
}

func newResendServer(t *testing.T, status int, calls *int32, captured *capturedEmail, authorization *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			http.NotFound(w, r)
			return
		}
		if authorization != nil {
			*authorization = r.Header.Get("Authorization")
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from field"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"email-123"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEmailDispatcherWithoutSettingsMakesNoHTTPCall(t *testing.T) {
	var calls int32
	server := newResendServer(t, http.StatusOK, &calls, nil, nil)

	for _, source := range []stubEmailSettings{
		{err: settings.ErrNotFound},
		{settings: settings.EmailSettings{SenderEmail: "info@heizoel.de"}},
	} {
		dispatcher, err := NewEmailDispatcher(EmailDispatcherConfig{Settings: source, BaseURL: server.URL})
		require.NoError(t, err)

		_, err = dispatcher.Send(context.Background(), ContactEvent(sampleContact()))
		require.ErrorIs(t, err, ErrEmailNotConfigured)
		_, err = dispatcher.SendTest(context.Background(), "")
		require.ErrorIs(t, err, ErrEmailNotConfigured)
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestEmailDispatcherSendsEscapedConfirmation(t *testing.T) {
	var calls int32
	var captured capturedEmail
	var authorization string
	server := newResendServer(t, http.StatusOK, &calls, &captured, &authorization)

	dispatcher, err := NewEmailDispatcher(EmailDispatcherConfig{
		Settings: stubEmailSettings{settings: completeEmailSettings()},
		BaseURL:  server.URL,
		SiteName: "Heizöl Service",
	})
	require.NoError(t, err)

	receipt, err := dispatcher.Send(context.Background(), ContactEvent(sampleContact()))
	require.NoError(t, err)
	require.Equal(t, "email-123", receipt.MessageID)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.Equal(t, "Bearer re_test_key", authorization)
	require.Equal(t, "Heizöl Service <info@heizoel.de>", captured.From)
	require.Equal(t, []string{"max@acme.de"}, captured.To)
	require.Equal(t, []string{"team@heizoel.de"}, captured.Bcc)
	require.Equal(t, "Ihre Anfrage bei Heizöl Service", captured.Subject)
	require.Contains(t, captured.HTML, "Hallo<br>&lt;script&gt;")
	require.NotContains(t, captured.HTML, "<script>")
}

func TestEmailDispatcherRendersOrderDetails(t *testing.T) {
	var calls int32
	var captured capturedEmail
	server := newResendServer(t, http.StatusOK, &calls, &captured, nil)

	config := completeEmailSettings()
	config.NotifyEmail = ""
	dispatcher, err := NewEmailDispatcher(EmailDispatcherConfig{
		Settings: stubEmailSettings{settings: config},
		BaseURL:  server.URL + "/",
		SiteName: "Heizöl Service",
	})
	require.NoError(t, err)

	_, err = dispatcher.Send(context.Background(), OrderEvent(sampleOrder()))
	require.NoError(t, err)
	require.Empty(t, captured.Bcc)
	require.Contains(t, captured.HTML, "Heizöl EL Premium")
	require.Contains(t, captured.HTML, "2500 Liter")
	require.Contains(t, captured.HTML, "So schnell wie möglich")
}

func TestEmailDispatcherReturnsProviderError(t *testing.T) {
	var calls int32
	server := newResendServer(t, http.StatusUnprocessableEntity, &calls, nil, nil)

	dispatcher, err := NewEmailDispatcher(EmailDispatcherConfig{
		Settings: stubEmailSettings{settings: completeEmailSettings()},
		BaseURL:  server.URL,
	})
	require.NoError(t, err)

	_, err = dispatcher.Send(context.Background(), OrderEvent(sampleOrder()))
	require.ErrorIs(t, err, ErrEmailDelivery)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "provider errors are not retried")
}

func TestEmailDispatcherSendTestFallsBackToBusinessAddress(t *testing.T) {
	var calls int32
	var captured capturedEmail
	server := newResendServer(t, http.StatusOK, &calls, &captured, nil)

	dispatcher, err := NewEmailDispatcher(EmailDispatcherConfig{
		Settings: stubEmailSettings{settings: completeEmailSettings()},
		BaseURL:  server.URL,
		SiteName: "Heizöl Service",
	})
	require.NoError(t, err)

	receipt, err := dispatcher.SendTest(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"team@heizoel.de"}, receipt.To)
	require.True(t, strings.HasPrefix(captured.Subject, "Test-E-Mail"))
}

func TestNl2brEscapesBeforeBreaking(t *testing.T) {
	require.Equal(t, "a &amp; b<br>c<br>d", string(nl2br("a & b\r\nc\nd")))
}

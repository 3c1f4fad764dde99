package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func activeBot() settings.TelegramSettings {
	return settings.TelegramSettings{ID: 1, BotToken: "123:abc", IsActive: true}
}

func TestTelegramDispatcherRequiresActiveBot(t *testing.T) {
	sender := newFakeSender()
	for _, source := range []stubTelegramSettings{
		{err: settings.ErrNotFound},
		{settings: settings.TelegramSettings{BotToken: "123:abc", IsActive: false}},
	} {
		dispatcher, err := NewTelegramDispatcher(TelegramDispatcherConfig{Settings: source, NewSender: sender.factory()})
		require.NoError(t, err)
		_, err = dispatcher.Dispatch(context.Background(), TestEvent())
		require.ErrorIs(t, err, ErrTelegramNotConfigured)
	}
	require.Empty(t, sender.sent)
}

func TestTelegramDispatcherNoRecipientsIsNotAnError(t *testing.T) {
	dispatcher, err := NewTelegramDispatcher(TelegramDispatcherConfig{
		Settings:  stubTelegramSettings{settings: activeBot()},
		NewSender: newFakeSender().factory(),
	})
	require.NoError(t, err)

	report, err := dispatcher.Dispatch(context.Background(), OrderEvent(sampleOrder()))
	require.NoError(t, err)
	require.Zero(t, report.Successful)
	require.Zero(t, report.Failed)
	require.Empty(t, report.Results)
}

func TestTelegramDispatcherRoutesByCategory(t *testing.T) {
	sender := newFakeSender()
	dispatcher, err := NewTelegramDispatcher(TelegramDispatcherConfig{
		Settings: stubTelegramSettings{
			settings: activeBot(),
			chats: []settings.TelegramChat{
				activeChat("1", settings.CategoryInquiries),
				activeChat("2", settings.CategoryOrders),
				activeChat("3", settings.CategoryInquiries, settings.CategoryOrders),
			},
		},
		NewSender: sender.factory(),
		SiteName:  "Heizöl Service",
	})
	require.NoError(t, err)

	report, err := dispatcher.Dispatch(context.Background(), OrderEvent(sampleOrder()))
	require.NoError(t, err)
	require.Equal(t, 2, report.Successful)
	require.Contains(t, sender.sent, "2")
	require.Contains(t, sender.sent, "3")
	require.NotContains(t, sender.sent, "1")
	require.Contains(t, sender.sent["2"], "Neue Bestellanfrage")

	report, err = dispatcher.Dispatch(context.Background(), TestEvent())
	require.NoError(t, err)
	require.Equal(t, 2, report.Successful, "test pings use the inquiry category")
}

func TestProperty_PartialFailureCountsPerRecipient(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("n recipients with k failing report n-k successes and k failures", prop.ForAll(
		func(total, failing int) bool {
			if failing > total {
				failing = total
			}
			chats := make([]settings.TelegramChat, 0, total)
			failingIDs := make([]string, 0, failing)
			for index := 0; index < total; index++ {
				chatID := fmt.Sprintf("%d", 1000+index)
				chats = append(chats, activeChat(chatID, settings.CategoryInquiries))
				if index < failing {
					failingIDs = append(failingIDs, chatID)
				}
			}
			dispatcher, err := NewTelegramDispatcher(TelegramDispatcherConfig{
				Settings:  stubTelegramSettings{settings: activeBot(), chats: chats},
				NewSender: newFakeSender(failingIDs...).factory(),
			})
			if err != nil {
				return false
			}
			report, err := dispatcher.Dispatch(context.Background(), ContactEvent(sampleContact()))
			if err != nil {
				return false
			}
			if report.Successful != total-failing || report.Failed != failing || len(report.Results) != total {
				return false
			}
			for _, result := range report.Results {
				if result.Success == (result.Error != "") {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 12),
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}

func TestBotSenderAgainstFakeTelegramAPI(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bot123:abc/sendMessage") {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseMultipartForm(1 << 20)
		chatID := strings.Trim(r.FormValue("chat_id"), `"`)
		mu.Lock()
		received[chatID] = strings.Trim(r.FormValue("parse_mode"), `"`)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if chatID == "404" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":1,"type":"private"},"text":"ok"}}`))
	}))
	defer server.Close()

	dispatcher, err := NewTelegramDispatcher(TelegramDispatcherConfig{
		Settings: stubTelegramSettings{
			settings: activeBot(),
			chats: []settings.TelegramChat{
				activeChat("1001", settings.CategoryInquiries),
				activeChat("404", settings.CategoryInquiries),
				activeChat("1002", settings.CategoryInquiries),
			},
		},
		ServerURL:  server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	report, err := dispatcher.Dispatch(context.Background(), ContactEvent(sampleContact()))
	require.NoError(t, err)
	require.Equal(t, 2, report.Successful)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "404", report.Results[1].ChatID)
	require.False(t, report.Results[1].Success)
	require.NotEmpty(t, report.Results[1].Error)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
	require.Equal(t, "Markdown", received["1001"])
}

package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"guardian-sentinel-bot/internal/publisher"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getMeOK = `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Guardian","username":"guardian_bot"}}`

const sentOK = `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"channel"}}}`

type request struct {
	fields map[string]string
	file   []byte
}

// fakeAPI is a Bot API stand-in answering per method.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	requests  map[string][]request
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		responses: map[string]string{"getMe": getMeOK, "sendMessage": sentOK, "sendPhoto": sentOK},
		requests:  map[string][]request{},
	}
	server := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(server.Close)
	return api, server
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	req := request{fields: map[string]string{}}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				req.fields[k] = v[0]
			}
			if f, _, err := r.FormFile("photo"); err == nil {
				req.file, _ = io.ReadAll(f)
				f.Close()
			}
		}
	} else if err := r.ParseForm(); err == nil {
		for k, v := range r.PostForm {
			req.fields[k] = v[0]
		}
	}

	a.mu.Lock()
	a.requests[method] = append(a.requests[method], req)
	body, ok := a.responses[method]
	a.mu.Unlock()

	if !ok {
		body = `{"ok":false,"error_code":404,"description":"Not Found"}`
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func (a *fakeAPI) respond(method, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[method] = body
}

func (a *fakeAPI) last(t *testing.T, method string) request {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	reqs := a.requests[method]
	require.NotEmpty(t, reqs, "no %s request", method)
	return reqs[len(reqs)-1]
}

func (a *fakeAPI) count(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests[method])
}

func newTestBot(t *testing.T, server *httptest.Server, channel string) *Bot {
	t.Helper()
	bot, err := NewBot(BotConfig{
		Token:       "token",
		ChannelID:   channel,
		APIEndpoint: server.URL + "/bot%s/%s",
	})
	require.NoError(t, err)
	return bot
}

func TestNewBot(t *testing.T) {
	_, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	assert.Equal(t, int64(42), bot.SelfID())
	name, err := bot.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "guardian_bot", name)
}

func TestNewBot_Failures(t *testing.T) {
	api, server := newFakeAPI(t)

	_, err := NewBot(BotConfig{ChannelID: "-1", APIEndpoint: server.URL + "/bot%s/%s"})
	assert.Error(t, err, "missing token")

	_, err = NewBot(BotConfig{Token: "token", APIEndpoint: server.URL + "/bot%s/%s"})
	assert.Error(t, err, "missing channel")

	_, err = NewBot(BotConfig{Token: "token", ChannelID: "guardian", APIEndpoint: server.URL + "/bot%s/%s"})
	assert.Error(t, err, "channel is neither numeric nor @username")

	api.respond("getMe", `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	_, err = NewBot(BotConfig{Token: "token", ChannelID: "-1", APIEndpoint: server.URL + "/bot%s/%s"})
	assert.Error(t, err, "identity check")
}

func TestPost_Text(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	require.NoError(t, bot.Post(context.Background(), "whale ahoy", nil))

	req := api.last(t, "sendMessage")
	assert.Equal(t, "-100123", req.fields["chat_id"])
	assert.Equal(t, "whale ahoy", req.fields["text"])
}

func TestPost_Photo(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "@guardian_alerts")

	require.NoError(t, bot.Post(context.Background(), "whale ahoy", []byte("png")))

	req := api.last(t, "sendPhoto")
	assert.Equal(t, "@guardian_alerts", req.fields["chat_id"])
	assert.Equal(t, "whale ahoy", req.fields["caption"])
	assert.Equal(t, []byte("png"), req.file)
}

func TestPost_LongCaptionFallsBackToText(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	long := strings.Repeat("a", maxCaptionLength+1)
	require.NoError(t, bot.Post(context.Background(), long, []byte("png")))

	assert.Equal(t, long, api.last(t, "sendMessage").fields["text"])
	assert.Zero(t, api.count("sendPhoto"))
}

func TestPost_Rejections(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	api.respond("sendMessage", `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`)
	err := bot.Post(context.Background(), "text", nil)
	assert.True(t, errors.Is(err, publisher.ErrRejected), "403 is a rejection: %v", err)

	api.respond("sendPhoto", `{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`)
	err = bot.Post(context.Background(), "text", []byte("png"))
	assert.True(t, errors.Is(err, publisher.ErrRejected), "400 upload is a rejection: %v", err)

	api.respond("sendMessage", `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`)
	err = bot.Post(context.Background(), "text", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, publisher.ErrRejected))
}

func TestPost_CancelledContext(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, bot.Post(ctx, "text", nil))
	assert.Zero(t, api.count("sendMessage"))
}

func TestMentions(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	api.respond("getUpdates", `{"ok":true,"result":[
		{"update_id":11,"message":{"message_id":1,"date":0,"from":{"id":5,"is_bot":false,"first_name":"Ann","username":"ann"},"chat":{"id":5,"type":"private"},"text":"status?"}},
		{"update_id":12,"message":{"message_id":2,"date":0,"from":{"id":6,"is_bot":false,"first_name":"Bo"},"chat":{"id":-200,"type":"supergroup"},"text":"hey @Guardian_Bot any whales?"}},
		{"update_id":13,"message":{"message_id":3,"date":0,"from":{"id":7,"is_bot":false,"first_name":"Cy","username":"cy"},"chat":{"id":-200,"type":"supergroup"},"text":"nice",
			"reply_to_message":{"message_id":1,"date":0,"from":{"id":42,"is_bot":true,"first_name":"Guardian"},"chat":{"id":-200,"type":"supergroup"}}}},
		{"update_id":14,"message":{"message_id":4,"date":0,"from":{"id":8,"is_bot":false,"first_name":"Di"},"chat":{"id":-200,"type":"supergroup"},"text":"gm"}},
		{"update_id":15,"edited_message":{"message_id":4,"date":0,"chat":{"id":-200,"type":"supergroup"},"text":"gm all"}}
	]}`)

	mentions, err := bot.Mentions(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "11", api.last(t, "getUpdates").fields["offset"])

	require.Len(t, mentions, 5)
	for i, m := range mentions {
		assert.Equal(t, int64(11+i), m.ID)
	}
	assert.True(t, mentions[0].Direct, "private chat")
	assert.Equal(t, "ann", mentions[0].Author)
	assert.Equal(t, int64(5), mentions[0].AuthorID)

	assert.True(t, mentions[1].Direct, "@mention")
	assert.Equal(t, "Bo", mentions[1].Author)
	assert.Equal(t, int64(-200), mentions[1].ChatID)
	assert.Equal(t, 2, mentions[1].MessageID)

	assert.True(t, mentions[2].Direct, "reply to the bot")
	assert.False(t, mentions[3].Direct)
	assert.False(t, mentions[4].Direct)
	assert.Empty(t, mentions[4].Text)
}

func TestReply(t *testing.T) {
	api, server := newFakeAPI(t)
	bot := newTestBot(t, server, "-100123")

	api.respond("getUpdates", `{"ok":true,"result":[{"update_id":3,"message":{"message_id":9,"date":0,"from":{"id":5,"is_bot":false,"first_name":"Ann"},"chat":{"id":-200,"type":"group"},"text":"@guardian_bot hi"}}]}`)
	mentions, err := bot.Mentions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, mentions, 1)

	require.NoError(t, bot.Reply(context.Background(), mentions[0], "Shields up."))

	req := api.last(t, "sendMessage")
	assert.Equal(t, "-200", req.fields["chat_id"])
	assert.Equal(t, "9", req.fields["reply_to_message_id"])
	assert.Equal(t, "Shields up.", req.fields["text"])
}

package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/jwalitptl/booking-feed/internal/handler/health"
	notificationHandler "github.com/jwalitptl/booking-feed/internal/handler/notification"
	promHandler "github.com/jwalitptl/booking-feed/internal/handler/prometheus"
	"github.com/jwalitptl/booking-feed/internal/middleware"
	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/presenter"
	"github.com/jwalitptl/booking-feed/internal/repository/rest"
	eventService "github.com/jwalitptl/booking-feed/internal/service/event"
	notificationService "github.com/jwalitptl/booking-feed/internal/service/notification"
	"github.com/jwalitptl/booking-feed/pkg/logger"
	"github.com/jwalitptl/booking-feed/pkg/messaging"
	"github.com/jwalitptl/booking-feed/pkg/metrics"
)

const waitFor = 2 * time.Second

// memoryBroker hands out one pipe per subscription.
type memoryBroker struct {
	mu   sync.Mutex
	pipe *messaging.Pipe
}

func (b *memoryBroker) Subscribe(ctx context.Context, channel string) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pipe = messaging.NewPipe(16, nil)
	return b.pipe, nil
}

func (b *memoryBroker) Close() error { return nil }

func (b *memoryBroker) publish(payload string) bool {
	b.mu.Lock()
	p := b.pipe
	b.mu.Unlock()
	return p != nil && p.Send([]byte(payload))
}

// backendStub is the booking backend: first confirmer wins, a fixed
// history page and one known customer.
type backendStub struct {
	mu      sync.Mutex
	acks    map[string]model.Acknowledgment
	history []string
	clock   time.Time
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/notifications":
		items := "[" + strings.Join(b.history, ",") + "]"
		if r.URL.Query().Get("page") != "" && r.URL.Query().Get("page") != "1" {
			items = "[]"
		}
		io.WriteString(w, `{"items":`+items+`,"page":1,"pageSize":50,"total":1}`)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/ack"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/notifications/"), "/ack")
		var req model.AckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ack, ok := b.acks[id]
		if !ok {
			b.clock = b.clock.Add(time.Second)
			ack = model.Acknowledgment{ID: id, Read: true, AcknowledgedAt: b.clock, AcknowledgedBy: req.StaffID}
			b.acks[id] = ack
		}
		json.NewEncoder(w).Encode(ack)

	case r.Method == http.MethodGet && r.URL.Path == "/customers/c1":
		io.WriteString(w, `{"id":"c1","name":"Ann Archer","profileUrl":"/crm/c1"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type FlowSuite struct {
	suite.Suite
	broker  *memoryBroker
	backend *backendStub
	server  *httptest.Server
	api     *httptest.Server
	source  *eventService.Source
	release func()
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.broker = &memoryBroker{}
	s.backend = &backendStub{
		acks:  make(map[string]model.Acknowledgment),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		history: []string{
			`{"id":"h0","type":"created","customerId":"c9","customerName":"Old","bookingTime":"09:00","createdAt":"2024-05-01T08:00:00Z","read":true,"acknowledgedAt":"2024-05-01T08:05:00Z","acknowledgedBy":"staff-b"}`,
		},
	}
	s.server = httptest.NewServer(s.backend)

	registry := prometheus.NewRegistry()
	m := metrics.New("feed", registry)
	l := logger.Nop()

	client := rest.NewClient(rest.Config{BaseURL: s.server.URL, Timeout: time.Second}, m, l)
	notifications := rest.NewNotificationRepository(client)

	log := notificationService.NewLog(m)
	acker := notificationService.NewAcknowledger(log, notifications, notificationService.AckConfig{StaffID: "staff-a"}, m, l)
	s.source = eventService.NewSource(s.broker, log, eventService.Config{Channel: "bookings:venue-1", Scope: "venue-1", ReplayLimit: 10},
		eventService.WithHistory(notifications),
		eventService.WithReconciler(acker),
		eventService.WithMetrics(m),
	)
	svc := notificationService.NewService(log, acker, s.source)

	directory := presenter.NewCustomerDirectory(rest.NewCustomerRepository(client), time.Minute, time.Minute)
	r := NewRouter(
		notificationHandler.NewHandler(svc, notifications, presenter.NewRenderer(directory), "venue-1", l),
		health.NewHandler(s.source),
		promHandler.New("feed", registry),
		RouterConfig{CORSConfig: middleware.DefaultCORSConfig(), RateLimit: 1000, RateBurst: 1000},
	)
	r.Setup()
	s.api = httptest.NewServer(r.Engine())
}

func (s *FlowSuite) TearDownTest() {
	if s.release != nil {
		s.release()
	}
	s.api.Close()
	s.server.Close()
}

func (s *FlowSuite) request(method, path, body string, out interface{}) int {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.api.URL+path, rdr)
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	if out != nil {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
		s.Require().NoError(json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode
}

func (s *FlowSuite) unreadCount() int {
	var data struct {
		UnreadCount int `json:"unreadCount"`
	}
	s.request(http.MethodGet, "/api/v1/notifications/unread-count", "", &data)
	return data.UnreadCount
}

func (s *FlowSuite) connect() {
	s.Equal(http.StatusServiceUnavailable, s.request(http.MethodGet, "/health/ready", "", nil))
	s.release = s.source.Acquire()
	s.Require().Eventually(s.source.IsConnected, waitFor, 5*time.Millisecond)
}

func (s *FlowSuite) TestLiveEventsAndAcknowledgment() {
	s.connect()
	s.Equal(http.StatusOK, s.request(http.MethodGet, "/health/ready", "", nil))

	// The replayed backlog arrives already acknowledged by another desk.
	var st notificationService.Status
	s.Require().Eventually(func() bool {
		s.request(http.MethodGet, "/api/v1/notifications/status", "", &st)
		return st.Total == 1
	}, waitFor, 5*time.Millisecond)
	s.Equal(0, st.UnreadCount)
	s.True(st.Connected)

	s.Require().True(s.broker.publish(`{"id":"e1","type":"created","customerId":"c1","customerName":"Ann","bookingTime":"18:00","bay":"Bay 2","createdAt":"2024-05-01T10:00:00Z"}`))
	s.Require().True(s.broker.publish(`{"type":"booking","payload":{"id":"e2","type":"modified","customerId":"c2","customerName":"Bo","bookingTime":"19:00","createdAt":"2024-05-01T10:01:00Z","metadata":{"changes":[{"field":"bay","old":"1","new":"3"}]}}}`))
	s.Require().Eventually(func() bool { return s.unreadCount() == 2 }, waitFor, 5*time.Millisecond)

	var dropdown struct {
		Items []struct {
			ID                 string `json:"id"`
			Title              string `json:"title"`
			CustomerName       string `json:"customerName"`
			CustomerProfileURL string `json:"customerProfileUrl"`
		} `json:"items"`
		UnreadCount int `json:"unreadCount"`
	}
	s.Equal(http.StatusOK, s.request(http.MethodGet, "/api/v1/notifications/dropdown", "", &dropdown))
	s.Require().Len(dropdown.Items, 2)
	s.Equal("e2", dropdown.Items[0].ID)
	s.Equal("Booking modified", dropdown.Items[0].Title)
	s.Equal("e1", dropdown.Items[1].ID)
	s.Equal("Ann Archer", dropdown.Items[1].CustomerName)
	s.Equal("/crm/c1", dropdown.Items[1].CustomerProfileURL)

	// First confirmer.
	var res notificationService.Result
	s.Equal(http.StatusOK, s.request(http.MethodPost, "/api/v1/notifications/e1/ack", `{"staffId":"staff-a"}`, &res))
	s.Equal(notificationService.OutcomeConfirmed, res.Outcome)
	s.Equal("staff-a", res.Acknowledgment.AcknowledgedBy)

	// Another desk got to e2 first; the default staff member loses the race.
	s.backend.mu.Lock()
	s.backend.acks["e2"] = model.Acknowledgment{ID: "e2", Read: true, AcknowledgedAt: time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC), AcknowledgedBy: "staff-b"}
	s.backend.mu.Unlock()

	s.Equal(http.StatusOK, s.request(http.MethodPost, "/api/v1/notifications/e2/ack", "", &res))
	s.Equal(notificationService.OutcomeSuperseded, res.Outcome)
	s.Equal("staff-b", res.Acknowledgment.AcknowledgedBy)
	s.Equal(0, s.unreadCount())

	// A redelivered event changes nothing.
	s.Require().True(s.broker.publish(`{"id":"e1","type":"created","customerId":"c1","customerName":"Ann","bookingTime":"18:00","bay":"Bay 2","createdAt":"2024-05-01T10:00:00Z"}`))
	s.Never(func() bool { return s.unreadCount() != 0 }, 50*time.Millisecond, 5*time.Millisecond)

	s.Equal(http.StatusOK, s.request(http.MethodGet, "/api/v1/notifications/status", "", &st))
	s.Equal(3, st.Total)
	s.Require().NotNil(st.Watermark)
	s.True(st.Watermark.Equal(time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)))
}

func (s *FlowSuite) TestAcknowledgeUnknownNotification() {
	s.connect()
	s.Equal(http.StatusNotFound, s.request(http.MethodPost, "/api/v1/notifications/nope/ack", `{"staffId":"staff-a"}`, nil))
}

func (s *FlowSuite) TestHistoryAndMetrics() {
	var page struct {
		Items []struct {
			ID   string `json:"id"`
			Read bool   `json:"read"`
		} `json:"items"`
		Total int `json:"total"`
	}
	s.Equal(http.StatusOK, s.request(http.MethodGet, "/api/v1/history?page=1", "", &page))
	s.Require().Len(page.Items, 1)
	s.Equal("h0", page.Items[0].ID)
	s.True(page.Items[0].Read)

	resp, err := http.Get(s.api.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "feed_backend_requests_total")
	s.Contains(string(body), "feed_http_requests_total")
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	name   string
	titles []string
	err    error
	block  chan struct{}
}

func (r *recordingSender) Send(ctx context.Context, title, _ string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func TestNotifierFiltersAndJoinsErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, []string{EventDispatch}, discard())

	if err := n.Notify(context.Background(), EventOpportunity, "t", "m"); err != nil {
		t.Fatalf("filtered event should not error: %v", err)
	}
	if ok.count() != 0 {
		t.Fatal("filtered event was delivered")
	}

	err := n.Notify(context.Background(), EventDispatch, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("expected joined sender error, got %v", err)
	}
	if ok.count() != 1 {
		t.Fatal("healthy sender should still receive the event")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	s := &recordingSender{name: "s"}
	q := NewQueue(NewNotifier([]Sender{s}, nil, discard()), 2, discard())

	for i := 0; i < 2; i++ {
		if !q.Enqueue(EventError, "t", "m") {
			t.Fatalf("enqueue %d should fit", i)
		}
	}
	if q.Enqueue(EventError, "t", "m") {
		t.Fatal("third enqueue should be dropped")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
}

func TestQueueEnqueueNeverBlocksOnSlowSender(t *testing.T) {
	s := &recordingSender{name: "slow", block: make(chan struct{})}
	q := NewQueue(NewNotifier([]Sender{s}, nil, discard()), 1, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	start := time.Now()
	for i := 0; i < 50; i++ {
		q.Enqueue(EventOpportunity, "t", "m")
	}
	if time.Since(start) > time.Second {
		t.Fatal("enqueue blocked on a slow sender")
	}
	close(s.block)
	cancel()
	<-done
}

func TestQueueRunDeliversAndFlushes(t *testing.T) {
	s := &recordingSender{name: "s"}
	q := NewQueue(NewNotifier([]Sender{s}, nil, discard()), 8, discard())
	for i := 0; i < 3; i++ {
		q.Enqueue(EventDispatch, "t", "m")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if s.count() != 3 {
		t.Fatalf("expected buffered events flushed, got %d", s.count())
	}
}

func TestQueueWithoutSendersAcceptsSilently(t *testing.T) {
	q := NewQueue(NewNotifier(nil, nil, discard()), 1, discard())
	for i := 0; i < 5; i++ {
		if !q.Enqueue(EventError, "t", "m") {
			t.Fatal("queue with no senders should not report drops")
		}
	}
	if q.Dropped() != 0 {
		t.Fatalf("unexpected drops %d", q.Dropped())
	}
}

func TestTelegramSenderUsesHTML(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "A & B", "<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if got["parse_mode"] != "HTML" || got["chat_id"] != "42" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["text"] != "<b>A &amp; B</b>\n<b>hi</b>" {
		t.Fatalf("unexpected text %q", got["text"])
	}
}

func TestTelegramSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "t", "m"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDiscordSenderConvertsHTML(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "<b>x</b> &amp; <code>y</code>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["content"] != "**T**\n**x** & `y`" {
		t.Fatalf("unexpected content %q", got["content"])
	}
}

func TestDispatchMessage(t *testing.T) {
	opp := domain.Opportunity{
		Base:      domain.TokenAsset{Symbol: "WMATIC"},
		Quote:     domain.TokenAsset{Symbol: "USDC"},
		BuyVenue:  "QuickSwap",
		SellVenue: "SushiSwap",
		Financing: []domain.FlashLoanQuote{
			{Symbol: "WMATIC", Principal: decimal.NewFromInt(10_000_000), Premium: decimal.NewFromInt(5000)},
		},
	}
	title, body := DispatchMessage(opp, domain.DispatchResult{Simulated: true, ExpectedProfit: decimal.RequireFromString("12.345")})
	if title != "Flash loan simulated" {
		t.Fatalf("unexpected title %q", title)
	}
	for _, want := range []string{"WMATIC/USDC", "QuickSwap → SushiSwap", "10000000 WMATIC", "$12.35", "Tx: <code>n/a</code>"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in %q", want, body)
		}
	}
}

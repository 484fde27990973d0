package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

var pushLog = logging.ForComponent(logging.CompPush)

const (
	pushSubscriptionsFileName = "push_subscriptions.json"
	defaultPushCooldown       = 30 * time.Second
	pushQueueSize             = 64
)

type pushSubscription struct {
	Endpoint string               `json:"endpoint"`
	Keys     pushSubscriptionKeys `json:"keys"`
}

type pushSubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (s pushSubscription) normalize() pushSubscription {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Keys.P256DH = strings.TrimSpace(s.Keys.P256DH)
	s.Keys.Auth = strings.TrimSpace(s.Keys.Auth)
	return s
}

func (s pushSubscription) validate() error {
	switch {
	case s.Endpoint == "":
		return errors.New("endpoint is required")
	case s.Keys.P256DH == "":
		return errors.New("keys.p256dh is required")
	case s.Keys.Auth == "":
		return errors.New("keys.auth is required")
	}
	return nil
}

// subscriptionStore keeps subscriptions in a JSON file.
type subscriptionStore struct {
	path string
	mu   sync.Mutex
}

type subscriptionFile struct {
	UpdatedAt     time.Time          `json:"updatedAt"`
	Subscriptions []pushSubscription `json:"subscriptions"`
}

func (s *subscriptionStore) list() ([]pushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return data.Subscriptions, nil
}

func (s *subscriptionStore) upsert(sub pushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range data.Subscriptions {
		if data.Subscriptions[i].Endpoint == sub.Endpoint {
			data.Subscriptions[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		data.Subscriptions = append(data.Subscriptions, sub)
	}
	return s.writeLocked(data)
}

func (s *subscriptionStore) remove(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := data.Subscriptions[:0]
	for _, sub := range data.Subscriptions {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	data.Subscriptions = kept
	return s.writeLocked(data)
}

func (s *subscriptionStore) readLocked() (*subscriptionFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &subscriptionFile{Subscriptions: []pushSubscription{}}, nil
		}
		return nil, fmt.Errorf("read push subscriptions: %w", err)
	}
	var data subscriptionFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse push subscriptions: %w", err)
	}
	if data.Subscriptions == nil {
		data.Subscriptions = []pushSubscription{}
	}
	return &data, nil
}

func (s *subscriptionStore) writeLocked(data *subscriptionFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir push dir: %w", err)
	}
	data.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal push subscriptions: %w", err)
	}
	return writeFileAtomic(s.path, raw)
}

type pushSender interface {
	Send(payload []byte, sub pushSubscription) (int, error)
}

type vapidSender struct {
	keys VAPIDKeys
}

func (s *vapidSender) Send(payload []byte, sub pushSubscription) (int, error) {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256DH, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		Subscriber:      s.keys.Subject,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             3600,
	})
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return status, err
	}
	if status >= 400 {
		return status, fmt.Errorf("push gateway status %d", status)
	}
	return status, nil
}

type pushMessage struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag"`
	TabID     string `json:"tabId"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// PushOptions tune a PushService.
type PushOptions struct {
	// Token is appended to the click-through path when auth is enabled.
	Token string
	// Cooldown suppresses repeats of the same kind for the same tab.
	Cooldown time.Duration
	// Limit and Burst cap sends across all tabs.
	Limit rate.Limit
	Burst int
}

// PushService sends a web push when a background tab needs attention.
type PushService struct {
	keys     VAPIDKeys
	store    *subscriptionStore
	sender   pushSender
	limiter  *rate.Limiter
	cooldown time.Duration
	token    string
	queue    chan pushMessage

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewPushService stores subscriptions in dir.
func NewPushService(dir string, keys VAPIDKeys, opts PushOptions) *PushService {
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultPushCooldown
	}
	if opts.Limit <= 0 {
		opts.Limit = rate.Every(5 * time.Second)
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	return &PushService{
		keys:     keys,
		store:    &subscriptionStore{path: filepath.Join(dir, pushSubscriptionsFileName)},
		sender:   &vapidSender{keys: keys},
		limiter:  rate.NewLimiter(opts.Limit, opts.Burst),
		cooldown: opts.Cooldown,
		token:    opts.Token,
		queue:    make(chan pushMessage, pushQueueSize),
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// PublicKey is handed to browsers when they subscribe.
func (p *PushService) PublicKey() string { return p.keys.PublicKey }

// Subject is the VAPID contact.
func (p *PushService) Subject() string { return p.keys.Subject }

// Subscribe stores a browser subscription, replacing one with the same
// endpoint.
func (p *PushService) Subscribe(sub pushSubscription) error {
	sub = sub.normalize()
	if err := sub.validate(); err != nil {
		return err
	}
	return p.store.upsert(sub)
}

// Unsubscribe forgets endpoint.
func (p *PushService) Unsubscribe(endpoint string) error {
	return p.store.remove(strings.TrimSpace(endpoint))
}

// SubscriptionCount reports stored subscriptions.
func (p *PushService) SubscriptionCount() (int, error) {
	subs, err := p.store.list()
	return len(subs), err
}

// Observe queues a push for notification events. It never blocks.
func (p *PushService) Observe(ev workspace.Event) {
	if ev.Type != workspace.EventNotification || ev.Kind == notify.None {
		return
	}
	key := ev.TabID + "/" + ev.Kind.String()
	now := p.now()

	p.mu.Lock()
	if last, ok := p.lastSent[key]; ok && now.Sub(last) < p.cooldown {
		p.mu.Unlock()
		logging.Aggregate(logging.CompPush, "push_cooldown", slog.String("tab", ev.TabID))
		return
	}
	if !p.limiter.AllowN(now, 1) {
		p.mu.Unlock()
		logging.Aggregate(logging.CompPush, "push_rate_limited", slog.String("tab", ev.TabID))
		return
	}
	p.lastSent[key] = now
	p.mu.Unlock()

	title := ""
	if ev.Tab != nil {
		title = ev.Tab.Title
	}
	msg := pushMessage{
		Title:     pushTitle(ev.Kind),
		Body:      title,
		Tag:       "shelldeck-" + key,
		TabID:     ev.TabID,
		Kind:      ev.Kind.String(),
		Path:      p.routePath("/", ev.TabID),
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	select {
	case p.queue <- msg:
	default:
		logging.Aggregate(logging.CompPush, "push_queue_full")
	}
}

// SendTest queues a test push for a tab without touching the cooldown or
// the rate limiter. It reports false when the queue is full.
func (p *PushService) SendTest(tabID, title string) bool {
	msg := pushMessage{
		Title:     "shelldeck test notification",
		Body:      title,
		Tag:       "shelldeck-test",
		TabID:     tabID,
		Kind:      "test",
		Path:      p.routePath("/", tabID),
		Timestamp: p.now().UTC().Format(time.RFC3339),
	}
	select {
	case p.queue <- msg:
		return true
	default:
		return false
	}
}

// Run sends queued pushes until ctx is done.
func (p *PushService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			p.send(msg)
		}
	}
}

func (p *PushService) send(msg pushMessage) {
	subs, err := p.store.list()
	if err != nil {
		pushLog.Error("push_list_subscriptions_failed", slog.String("error", err.Error()))
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		pushLog.Error("push_marshal_failed", slog.String("error", err.Error()))
		return
	}

	for _, sub := range subs {
		status, err := p.sender.Send(payload, sub)
		if err == nil {
			pushLog.Debug("push_sent",
				slog.String("endpoint", endpointForLog(sub.Endpoint)),
				slog.String("tab", msg.TabID),
				slog.String("kind", msg.Kind))
			continue
		}
		pushLog.Warn("push_send_failed",
			slog.String("endpoint", endpointForLog(sub.Endpoint)),
			slog.Int("http_status", status),
			slog.String("error", err.Error()))
		if status == http.StatusGone || status == http.StatusNotFound {
			_ = p.store.remove(sub.Endpoint)
		}
	}
}

func pushTitle(kind notify.Kind) string {
	if kind == notify.Confirmation {
		return "A tab is waiting for input"
	}
	return "A tab reported an error"
}

func (p *PushService) routePath(base, tabID string) string {
	u := &url.URL{Path: base}
	q := u.Query()
	q.Set("tab", tabID)
	if p.token != "" {
		q.Set("token", p.token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func endpointForLog(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	if len(endpoint) <= 48 {
		return endpoint
	}
	return endpoint[:48] + "..."
}

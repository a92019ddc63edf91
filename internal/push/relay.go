package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

var ErrInvalidSubscription = errors.New("invalid push subscription")

// maxConcurrentSends bounds the fan-out of one Notify call.
const maxConcurrentSends = 8

// SubscriptionStore is the persistence the relay needs.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub model.PushSubscription) error
	ListAll(ctx context.Context) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Subscription is the browser's PushSubscription.toJSON() shape.
type Subscription struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Notification is one fan-out request. ExcludeUser drops that user's
// devices; a non-empty TargetUsers keeps only those users' devices.
type Notification struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ExcludeUser string   `json:"excludeUser,omitempty"`
	TargetUsers []string `json:"targetUsers,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tag         string   `json:"tag,omitempty"`
}

// Result counts deliveries of one Notify call.
type Result struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
}

// Relay stores subscriptions and fans notifications out to them.
type Relay struct {
	store  SubscriptionStore
	sender Sender
	logger *slog.Logger
	now    func() time.Time
}

func NewRelay(store SubscriptionStore, sender Sender, logger *slog.Logger) *Relay {
	return &Relay{store: store, sender: sender, logger: logger, now: time.Now}
}

// Subscribe upserts sub for user under Key(sub.Endpoint).
func (r *Relay) Subscribe(ctx context.Context, sub Subscription, user string) (model.PushSubscription, error) {
	user = strings.TrimSpace(user)
	if sub.Endpoint == "" || user == "" {
		return model.PushSubscription{}, fmt.Errorf("%w: endpoint and user are required", ErrInvalidSubscription)
	}
	rec := model.PushSubscription{
		Key:       Key(sub.Endpoint),
		Endpoint:  sub.Endpoint,
		P256dhKey: sub.Keys.P256dh,
		AuthKey:   sub.Keys.Auth,
		User:      user,
		UpdatedAt: r.now(),
	}
	if err := r.store.Upsert(ctx, rec); err != nil {
		return model.PushSubscription{}, err
	}
	return rec, nil
}

// Notify delivers n to every matching subscription. Each delivery is
// independent: a failure is logged and counted, never returned. Expired
// subscriptions are deleted. The only error is failing to load the
// subscription list.
func (r *Relay) Notify(ctx context.Context, n Notification) (Result, error) {
	subs, err := r.store.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list push subscriptions: %w", err)
	}

	targets := Filter(subs, n.ExcludeUser, n.TargetUsers)
	payload := Payload{Title: n.Title, Body: n.Body, URL: n.URL, Tag: n.Tag}
	if payload.Tag == "" {
		payload.Tag = "shower-status"
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
		sem  = make(chan struct{}, maxConcurrentSends)
	)
	for i := range targets {
		sub := targets[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.sender.Send(ctx, &sub, payload)
			switch {
			case err == nil:
				mu.Lock()
				sent++
				mu.Unlock()
			case errors.Is(err, ErrExpired):
				r.logger.Info("removing expired push subscription", "user", sub.User, "key", sub.Key)
				if err := r.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					r.logger.Error("delete expired push subscription", "error", err)
				}
			default:
				r.logger.Warn("push send failed", "user", sub.User, "error", err)
			}
		}()
	}
	wg.Wait()

	return Result{Attempted: len(targets), Sent: sent}, nil
}

// NotifyAsync runs Notify in the background with its own deadline. Used by
// flows that must not wait on delivery.
func (r *Relay) NotifyAsync(n Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Notify(ctx, n); err != nil {
			r.logger.Error("push notify", "title", n.Title, "error", err)
		}
	}()
}

// Filter applies the exclude and target rules to subs.
func Filter(subs []model.PushSubscription, excludeUser string, targetUsers []string) []model.PushSubscription {
	var targets map[string]bool
	if len(targetUsers) > 0 {
		targets = make(map[string]bool, len(targetUsers))
		for _, u := range targetUsers {
			targets[u] = true
		}
	}

	out := make([]model.PushSubscription, 0, len(subs))
	for _, sub := range subs {
		if excludeUser != "" && sub.User == excludeUser {
			continue
		}
		if targets != nil && !targets[sub.User] {
			continue
		}
		out = append(out, sub)
	}
	return out
}

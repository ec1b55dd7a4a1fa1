package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"gamehost/pkg/keylock"
	"gamehost/services/bundle"
	"gamehost/services/feedback"
	"gamehost/services/games"
)

const (
	defaultMaxUploadBytes = 512 << 20
	defaultRequestTimeout = 2 * time.Minute
	sideEffectTimeout     = 10 * time.Second
	formMemory            = 32 << 20

	gameUploadedTopic      = "gamehost.games.uploaded"
	gameReuploadedTopic    = "gamehost.games.reuploaded"
	gameDeletedTopic       = "gamehost.games.deleted"
	feedbackSubmittedTopic = "gamehost.feedback.submitted"
)

// Publisher emits lifecycle events. pkg/bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Mirror copies artifacts to secondary storage. pkg/s3 satisfies it.
type Mirror interface {
	PutArtifact(ctx context.Context, id string, archive, image []byte) error
	DeleteArtifact(ctx context.Context, id string) error
}

// Store holds the collaborators required by the API layer. Games, Resolver
// and Feedback are required; Bus and Mirror are optional.
type Store struct {
	Games    *games.Store
	Resolver *bundle.Resolver
	Feedback *feedback.Log
	Bus      Publisher
	Mirror   Mirror
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// MaxUploadBytes caps the request body of mutating routes.
	MaxUploadBytes int64
	// AllowedOrigins feeds the CORS handler; empty means any origin.
	AllowedOrigins []string
	// RateLimit is the per-IP request budget per minute on mutating routes.
	// Zero disables limiting.
	RateLimit int
	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration
	// Registry receives the service metrics and backs /metrics. A private
	// registry is created when nil.
	Registry *prometheus.Registry
	Logger   zerolog.Logger
}

// API wires the game store, resolver and side-effect sinks into HTTP handlers.
type API struct {
	store   *Store
	config  Config
	metrics *metrics
	logger  zerolog.Logger
	// locks orders a mutation and its mirror and bus side effects per game
	// id, so a delete never overtakes the tail of an upload.
	locks *keylock.Map
}

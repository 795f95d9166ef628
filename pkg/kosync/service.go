// Package kosync implements the KOReader progress sync protocol.
package kosync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/models"
	"github.com/wbip/wbip/pkg/progress"
	"github.com/wbip/wbip/pkg/users"
)

// Credentials are the x-auth-user and x-auth-key headers a device sends.
type Credentials struct {
	Username string
	Userkey  string
}

// PushResult is what a device gets back after a successful push.
type PushResult struct {
	Document  string `json:"document"`
	Timestamp int64  `json:"timestamp"`
}

type Service struct {
	users             *users.Service
	progress          *progress.Service
	allowRegistration bool
	now               func() time.Time
}

func NewService(db *bun.DB, allowRegistration bool) *Service {
	return &Service{
		users:             users.NewService(db),
		progress:          progress.NewService(db),
		allowRegistration: allowRegistration,
		now:               time.Now,
	}
}

// Register creates a sync user. The first registration of a username wins.
func (svc *Service) Register(ctx context.Context, username, password string) error {
	if !svc.allowRegistration {
		return errcodes.ValidationError("Registration has been disabled.")
	}
	if username == "" || password == "" {
		return errcodes.ValidationError("Username and password are required.")
	}

	created, err := svc.users.Create(ctx, username, password)
	if err != nil {
		return errors.WithStack(err)
	}
	if !created {
		return errcodes.Conflict("Username is already registered.")
	}

	logger.FromContext(ctx).Info("sync user registered", logger.Data{"username": username})
	return nil
}

// Authorize checks creds against the stored user.
func (svc *Service) Authorize(ctx context.Context, creds Credentials) error {
	if creds.Username == "" || creds.Userkey == "" {
		return errcodes.ValidationError("x-auth-user and x-auth-key headers are required.")
	}
	return svc.authenticate(ctx, creds)
}

func (svc *Service) authenticate(ctx context.Context, creds Credentials) error {
	ok, err := svc.users.CheckLogin(ctx, creds.Username, creds.Userkey)
	if err != nil {
		return errors.WithStack(err)
	}
	if !ok {
		return errcodes.Unauthorized()
	}
	return nil
}

// PushProgress stores the device's position for a document, stamped with the
// server's clock.
func (svc *Service) PushProgress(ctx context.Context, creds Credentials, payload *ProgressPayload) (*PushResult, error) {
	if err := validatePush(creds, payload); err != nil {
		return nil, err
	}
	if err := svc.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	doc := &models.Document{
		Document:   payload.Document,
		Progress:   payload.Progress,
		Percentage: *payload.Percentage,
		Device:     payload.Device,
		DeviceID:   payload.DeviceID,
		Timestamp:  svc.now().Unix(),
	}
	if err := svc.progress.Upsert(ctx, creds.Username, doc); err != nil {
		return nil, errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("progress pushed", logger.Data{
		"username":   creds.Username,
		"document":   doc.Document,
		"percentage": int(doc.Percentage * 100),
	})

	return &PushResult{Document: doc.Document, Timestamp: doc.Timestamp}, nil
}

// PullProgress returns the last pushed position for document.
func (svc *Service) PullProgress(ctx context.Context, creds Credentials, document string) (*models.Document, error) {
	if err := svc.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	doc, err := svc.progress.Retrieve(ctx, creds.Username, document)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return doc, nil
}

func validatePush(creds Credentials, payload *ProgressPayload) error {
	if creds.Username == "" || creds.Userkey == "" {
		return errcodes.ValidationError("x-auth-user and x-auth-key headers are required.")
	}
	if payload == nil || payload.Document == "" || payload.Progress == "" || payload.Percentage == nil ||
		payload.Device == "" || payload.DeviceID == "" {
		return errcodes.ValidationError("Missing/invalid parameters provided.")
	}
	if *payload.Percentage < 0 || *payload.Percentage > 1 {
		return errcodes.ValidationError("\"percentage\" must be between 0 and 1.")
	}
	return nil
}

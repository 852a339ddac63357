package service

import (
	"context"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// DefaultDownloadExpiry is how long a download link stays valid
const DefaultDownloadExpiry = 5 * time.Minute

// DownloadService hands out links to version builds
type DownloadService struct {
	store  DownloadStore
	files  Files
	events Events
	expiry time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewDownloadService creates a new download service
func NewDownloadService(store DownloadStore, files Files, events Events, expiry time.Duration) *DownloadService {
	if expiry <= 0 {
		expiry = DefaultDownloadExpiry
	}
	return &DownloadService{
		store:  store,
		files:  files,
		events: events,
		expiry: expiry,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// DownloadLink is a short-lived URL for one version build
type DownloadLink struct {
	URL       string                `json:"url"`
	ExpiresAt time.Time             `json:"expires_at"`
	Version   models.ProductVersion `json:"version"`
	FileSize  int64                 `json:"file_size"`
}

// Link returns a presigned URL for a version's file. Free products are open
// to any signed-in user; paid ones need a paid order or the admin role.
func (s *DownloadService) Link(ctx context.Context, user models.User, versionID string) (*DownloadLink, error) {
	ctx, span := util.StartSpan(ctx, "DownloadService.Link")
	defer span.End()

	if err := requireUser(user, "download"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(versionID) == "" {
		return nil, apperr.Invalid("version id is required")
	}

	version, err := s.store.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	product, err := s.store.GetProductByID(ctx, version.ProductID)
	if err != nil {
		return nil, err
	}

	if !product.IsFree() && !user.IsAdmin() {
		owned, err := s.store.HasPurchased(ctx, user.ID, product.ID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, apperr.Forbidden("download unpurchased product")
		}
	}

	if version.FilePath == "" {
		return nil, apperr.NotFound("file for version", versionID)
	}
	if s.files == nil {
		return nil, apperr.Unavailable("download", nil)
	}

	url, err := s.files.PresignGet(ctx, version.FilePath, s.expiry)
	if err != nil {
		util.EndSpan(span, err)
		return nil, err
	}

	util.DownloadsIssuedTotal.Inc()
	s.logger.Info("Download link issued",
		zap.String("user_id", user.ID),
		zap.String("product_id", product.ID),
		zap.String("version_id", version.ID))

	if s.events != nil {
		event := &models.ProductDownloadedEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeProductDownloaded),
			ProductID: product.ID,
			VersionID: version.ID,
			UserID:    user.ID,
		}
		if err := s.events.PublishProductDownloaded(ctx, event); err != nil {
			s.logger.Error("Failed to publish ProductDownloaded event", zap.Error(err))
		}
	}

	return &DownloadLink{
		URL:       url,
		ExpiresAt: s.now().Add(s.expiry).UTC(),
		Version:   *version,
		FileSize:  version.FileSize,
	}, nil
}

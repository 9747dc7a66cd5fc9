package snapshot

import (
	"pagewatch/pkg/config"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snapshot",
	fx.Provide(
		NewCapturer,
		NewArchiver,
	),
)

func NewCapturer(cfg *config.Config) Capturer {
	return NewHTTPCapturer(cfg.Snapshot.Endpoint, cfg.Snapshot.Timeout)
}

type archiverParams struct {
	fx.In

	Config *config.Config
	Minio  *minio.Client `optional:"true"`
}

// NewArchiver returns nil when archiving is disabled or no MinIO client is wired.
func NewArchiver(p archiverParams) Archiver {
	if !p.Config.Snapshot.Archive {
		return nil
	}
	if p.Minio == nil {
		zap.L().Warn("[Snapshot] archiving enabled without a MinIO client, snapshots are not kept")
		return nil
	}
	return NewMinioArchiver(p.Minio, p.Config.Minio.BucketName)
}

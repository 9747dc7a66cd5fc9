package credential

import (
	"context"
	"errors"
	"time"

	"pagewatch/pkg/errutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyVersion = "v1"

type Record struct {
	Provider   string    `gorm:"column:provider;primaryKey;type:varchar(32)"`
	KeyEnc     string    `gorm:"column:key_enc;type:text;not null"`
	KeyVersion string    `gorm:"column:key_version;type:varchar(8);not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Record) TableName() string {
	return "credentials"
}

type gormProvider struct {
	db  *gorm.DB
	key [32]byte
	ok  bool
}

// NewGormProvider keeps keys sealed in the database. Without a secret only
// Clear works.
func NewGormProvider(db *gorm.DB, secret string) Provider {
	return &gormProvider{db: db, key: DeriveKey(secret), ok: secret != ""}
}

func (p *gormProvider) Get(ctx context.Context, provider string) (string, error) {
	if !p.ok {
		return "", errutil.Configuration("SECRET_KEY is not set", nil)
	}

	var rec Record
	err := p.db.WithContext(ctx).Where("provider = ?", provider).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMissingCredential
		}
		return "", errutil.Persistence("load credential", err)
	}

	key, err := Open(rec.KeyEnc, p.key)
	if err != nil {
		return "", errutil.Configuration("credential cannot be decrypted with SECRET_KEY", err)
	}
	return key, nil
}

func (p *gormProvider) Set(ctx context.Context, provider, key string) error {
	if !p.ok {
		return errutil.Configuration("SECRET_KEY is not set", nil)
	}
	if err := ValidateKey(provider, key); err != nil {
		return err
	}

	enc, err := Seal([]byte(key), p.key)
	if err != nil {
		return errutil.Persistence("seal credential", err)
	}

	rec := Record{Provider: provider, KeyEnc: enc, KeyVersion: keyVersion}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"key_enc", "key_version", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return errutil.Persistence("store credential", err)
	}
	return nil
}

func (p *gormProvider) Clear(ctx context.Context, provider string) error {
	err := p.db.WithContext(ctx).Where("provider = ?", provider).Delete(&Record{}).Error
	if err != nil {
		return errutil.Persistence("clear credential", err)
	}
	return nil
}

package objectstore

import (
	"context"
	"fmt"

	"minix/internal/config"
	"minix/internal/drive"
	"minix/internal/encryption"
)

// NewObjectStoreFromConfig creates an object store based on the config type.
// When cfg.Encrypted is set the store is wrapped in an EncryptedStore using enc.
func NewObjectStoreFromConfig(ctx context.Context, cfg config.ObjectStoreConfig, enc encryption.Encryptor) (drive.ObjectStore, error) {
	var (
		store drive.ObjectStore
		err   error
	)
	switch cfg.Type {
	case "memory":
		if cfg.Public {
			store = NewPublicMemoryStore(cfg.Name)
		} else {
			store = NewMemoryStore(cfg.Name)
		}
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem object store requires fs_root to be set")
		}
		signer, serr := NewSigner(cfg.BaseURL, cfg.SigningKey)
		if serr != nil {
			return nil, serr
		}
		store, err = NewFileSystemStore(cfg.Name, cfg.FSRoot, cfg.Public, signer)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 object store requires s3_bucket to be set")
		}
		store, err = NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypted {
		if enc == nil {
			return nil, fmt.Errorf("encrypted object store requires an encryptor")
		}
		return NewEncryptedStore(store, enc), nil
	}
	return store, nil
}

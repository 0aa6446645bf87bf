package encryption

import (
	"fmt"

	"minix/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// An empty type selects age.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

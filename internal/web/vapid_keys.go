package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const vapidKeysFileName = "vapid_keys.json"

type vapidKeysFile struct {
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"privateKey"`
	Subject    string    `json:"subject,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VAPIDKeys identify this server to push gateways.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// EnsureVAPIDKeys loads the keypair stored in dir, generating and storing
// one on first use. A changed subject is written back.
func EnsureVAPIDKeys(dir, subject string) (VAPIDKeys, bool, error) {
	path := filepath.Join(dir, vapidKeysFileName)
	subject = strings.TrimSpace(subject)

	file, err := loadVAPIDKeys(path)
	switch {
	case err == nil:
		if subject != "" && file.Subject != subject {
			file.Subject = subject
			if err := writeVAPIDKeys(path, file); err != nil {
				return VAPIDKeys{}, false, err
			}
		}
		return VAPIDKeys{PublicKey: file.PublicKey, PrivateKey: file.PrivateKey, Subject: file.Subject}, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return VAPIDKeys{}, false, err
	}

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, false, fmt.Errorf("generate vapid keypair: %w", err)
	}
	file = &vapidKeysFile{
		PublicKey:  strings.TrimSpace(publicKey),
		PrivateKey: strings.TrimSpace(privateKey),
		Subject:    subject,
		CreatedAt:  time.Now().UTC(),
	}
	if err := writeVAPIDKeys(path, file); err != nil {
		return VAPIDKeys{}, false, err
	}
	return VAPIDKeys{PublicKey: file.PublicKey, PrivateKey: file.PrivateKey, Subject: subject}, true, nil
}

func loadVAPIDKeys(path string) (*vapidKeysFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("read vapid keys: %w", err)
	}
	var file vapidKeysFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse vapid keys: %w", err)
	}
	if file.PublicKey == "" || file.PrivateKey == "" {
		return nil, errors.New("vapid keys file is missing keys")
	}
	return &file, nil
}

func writeVAPIDKeys(path string, file *vapidKeysFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir vapid dir: %w", err)
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vapid keys: %w", err)
	}
	return writeFileAtomic(path, raw)
}

func writeFileAtomic(path string, raw []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

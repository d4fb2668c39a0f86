package localstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
)

const (
	devicePrefix    = "PC_"
	deviceSuffixLen = 9
	base36          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewDeviceID generates a random device identifier such as "PC_k3j9x0q2m".
func NewDeviceID() (string, error) {
	var b strings.Builder
	b.WriteString(devicePrefix)
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < deviceSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate device id: %w", err)
		}
		b.WriteByte(base36[n.Int64()])
	}
	return b.String(), nil
}

func (s *Store) loadDeviceID(ctx context.Context) (string, error) {
	raw, ok, err := s.backend.Get(ctx, deviceBucket)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && strings.TrimSpace(id) != "" {
			return id, nil
		}
		s.logger.Warn("replacing unreadable device id")
	}
	id, err := NewDeviceID()
	if err != nil {
		return "", err
	}
	payload, _ := json.Marshal(id)
	if err := s.backend.Put(ctx, deviceBucket, payload); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	s.logger.Info("generated device id", zap.String("device_id", id))
	return id, nil
}

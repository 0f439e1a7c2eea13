// Package kvstore is the session key-value store: string keys, JSON values.
// Reads are failure tolerant; writes report their outcome.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Fixed keys used by the storefront.
const (
	KeyCart      = "so-cart"
	KeyLastOrder = "lastOrder"
	KeyNotes     = "shopping-notes"
)

// ErrWriteFailed wraps every failed write.
var ErrWriteFailed = errors.New("kvstore: write failed")

// Store is a raw byte key-value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value under key into dst. It returns false when the key
// is absent, the backend fails, or the stored value does not parse; dst is left
// untouched in those cases so the caller's default stands.
func GetJSON(ctx context.Context, s Store, key string, dst interface{}) bool {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		util.StoreFailuresTotal.WithLabelValues("read").Inc()
		util.GetLogger().Warn("Error reading from store", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok || len(raw) == 0 {
		return false
	}

	// json.Unmarshal may fill dst partway before failing, so decode into a
	// scratch value and copy it over only on success.
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Ptr || target.IsNil() {
		util.GetLogger().Error("GetJSON needs a non-nil pointer", zap.String("key", key))
		return false
	}
	scratch := reflect.New(target.Type().Elem())
	if err := json.Unmarshal(raw, scratch.Interface()); err != nil {
		util.StoreFailuresTotal.WithLabelValues("decode").Inc()
		util.GetLogger().Warn("Discarding unparseable stored value", zap.String("key", key), zap.Error(err))
		return false
	}
	target.Elem().Set(scratch.Elem())
	return true
}

// SetJSON encodes v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		util.StoreFailuresTotal.WithLabelValues("encode").Inc()
		return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, key, err)
	}

	if err := s.Set(ctx, key, raw); err != nil {
		util.StoreFailuresTotal.WithLabelValues("write").Inc()
		util.GetLogger().Error("Error saving to store", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, key, err)
	}
	return nil
}

// Scoped confines a store to one browsing session.
func Scoped(s Store, sessionID string) Store {
	return &scopedStore{inner: s, prefix: fmt.Sprintf("session:%s:", sessionID)}
}

type scopedStore struct {
	inner  Store
	prefix string
}

func (s *scopedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scopedStore) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *scopedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Package storage описывает origin-scoped key-value хранилище витрины.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound возвращается драйвером, если ключ отсутствует.
var ErrKeyNotFound = errors.New("key not found")

// DefaultOrigin используется, когда origin не задан в конфигурации.
const DefaultOrigin = "local"

// Entry — значение ключа вместе с ревизией.
type Entry struct {
	Value    []byte
	Revision int64
}

// Store — синхронное хранилище строковых ключей, ограниченное одним origin.
//
// Каждая запись увеличивает ревизию ключа. CompareAndSet с revision=0 требует,
// чтобы ключ отсутствовал. При несовпадении ревизии возвращается
// domain.ErrRevisionConflict.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, value []byte) (int64, error)
	CompareAndSet(ctx context.Context, key string, value []byte, revision int64) (int64, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

//go:build !integration

package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errDown = errors.New("redis down")

// fakeRedis is an in-memory RedisClient with just enough list semantics for
// the repository.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	expires map[string]time.Duration
	failAll bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		lists:   map[string][]string{},
		expires: map[string]time.Duration{},
	}
}

func (f *fakeRedis) err() error {
	if f.failAll {
		return errDown
	}
	return nil
}

func toString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.strings[key] = toString(value)
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return "", err
	}
	v, ok := f.strings[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, err
	}
	var n int64
	fmt.Sscan(f.strings[key], &n)
	n++
	f.strings[key] = fmt.Sprint(n)
	return n, nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = exp
	return f.err()
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], toString(v))
	}
	return nil
}

// bounds resolves redis-style inclusive, possibly negative indexes.
func bounds(n int, start, stop int64) (int, int) {
	s, e := int(start), int(stop)
	if s < 0 {
		s += n
	}
	if e < 0 {
		e += n
	}
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	return s, e
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	l := f.lists[key]
	s, e := bounds(len(l), start, stop)
	if s > e {
		f.lists[key] = nil
		return nil
	}
	f.lists[key] = append([]string(nil), l[s:e+1]...)
	return nil
}

func (f *fakeRedis) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	l := f.lists[key]
	s, e := bounds(len(l), start, stop)
	if s > e {
		return []string{}, nil
	}
	return append([]string(nil), l[s:e+1]...), nil
}

func (f *fakeRedis) Close() error { return nil }
